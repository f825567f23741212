package main

import (
	"github.com/smallbiznis/hourbill/internal/migration"
	"github.com/smallbiznis/hourbill/internal/scheduler"
	"github.com/smallbiznis/hourbill/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the overdue sweeper",
	Run: func(cmd *cobra.Command, args []string) {
		fx.New(
			coreModules(),
			migration.Module,
			server.Module,
			scheduler.Module,
		).Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
