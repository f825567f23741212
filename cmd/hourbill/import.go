package main

import (
	"context"
	"fmt"
	"os"

	"github.com/smallbiznis/hourbill/internal/audit"
	"github.com/smallbiznis/hourbill/internal/auditcontext"
	"github.com/smallbiznis/hourbill/internal/workitem"
	workitemdomain "github.com/smallbiznis/hourbill/internal/workitem/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var (
	importCustomer string
	importActor    string
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import support requests for a customer from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		var svc workitemdomain.Service
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeUser, importActor)
			result, err := svc.Import(ctx, workitemdomain.ImportRequest{
				CustomerID: importCustomer,
				Reader:     file,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d, skipped %d, rejected %d\n", len(result.Imported), result.Skipped, len(result.Errors))
			for _, rowErr := range result.Errors {
				fmt.Fprintln(out, "  "+rowErr.Error())
			}
			return nil
		},
			audit.Module,
			workitem.Module,
			fx.Populate(&svc),
		)
	},
}

func init() {
	importCmd.Flags().StringVar(&importCustomer, "customer", "", "customer id the requests belong to")
	importCmd.Flags().StringVar(&importActor, "actor", "cli", "actor recorded in the audit log")
	_ = importCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(importCmd)
}
