package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hourbill/internal/clock"
	"github.com/smallbiznis/hourbill/internal/config"
	"github.com/smallbiznis/hourbill/internal/observability"
	"github.com/smallbiznis/hourbill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var (
	pricingFile string
	nodeID      int64
)

var rootCmd = &cobra.Command{
	Use:   "hourbill",
	Short: "Support-hours billing and invoice engine",
	Long: `hourbill turns logged support requests into tiered invoices.

  hourbill serve     # HTTP API with the overdue sweeper
  hourbill migrate   # apply database migrations and exit
  hourbill sweep     # mark overdue invoices once and exit
  hourbill import    # load requests from a CSV file

Configuration comes from the environment (.env is read when present).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if pricingFile != "" {
			_ = os.Setenv("PRICING_CONFIG_PATH", pricingFile)
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pricingFile, "pricing", "", "pricing policy file (overrides PRICING_CONFIG_PATH)")
	rootCmd.PersistentFlags().Int64Var(&nodeID, "node", 1, "snowflake node id for generated ids")
}

// coreModules are shared by every command.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(nodeID)
}
