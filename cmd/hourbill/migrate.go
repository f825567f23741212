package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/hourbill/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), nil, migration.Module)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// runOnce starts an app, runs fn against it and stops it again.
func runOnce(ctx context.Context, fn func(context.Context) error, opts ...fx.Option) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := fx.New(append([]fx.Option{coreModules()}, opts...)...)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Stop(context.Background()))
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
