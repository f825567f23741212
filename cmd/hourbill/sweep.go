package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/hourbill/internal/audit"
	"github.com/smallbiznis/hourbill/internal/customer"
	"github.com/smallbiznis/hourbill/internal/invoice"
	"github.com/smallbiznis/hourbill/internal/scheduler"
	"github.com/smallbiznis/hourbill/internal/workitem"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark sent invoices past their due date as overdue and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sched *scheduler.Scheduler
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			if err := sched.RunOnce(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "overdue sweep complete")
			return nil
		},
			audit.Module,
			customer.Module,
			workitem.Module,
			invoice.Module,
			fx.Provide(scheduler.New),
			fx.Populate(&sched),
		)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
