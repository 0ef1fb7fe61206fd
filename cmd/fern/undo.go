package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/undo"
)

var undoCmd = &cobra.Command{
	Use:   "undo [operation-id]",
	Short: "Undo an import made in the last few minutes",
	Long: `Undo an import by deleting the leads it created, as long as they were not
edited since. Without an operation id the most recent import is undone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			var result *undo.Result
			if len(args) == 1 {
				result, err = a.undo.RevertByID(ctx, user, args[0], user)
			} else {
				result, err = a.undo.RevertLast(ctx, user, user)
			}
			if err != nil {
				return err
			}
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("nothing undone: %s", result.Reason)
			}
			return nil
		})
	},
}

var operationsLimit int

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List recent imports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			ops, err := a.ledger.List(ctx, user, operationsLimit)
			if err != nil {
				return err
			}

			type row struct {
				ID        string `json:"id"`
				Type      string `json:"operation_type"`
				Source    string `json:"source"`
				LeadCount int    `json:"lead_count"`
				CreatedAt string `json:"created_at"`
				Reverted  bool   `json:"reverted"`
				CanUndo   bool   `json:"can_undo"`
			}
			rows := make([]row, len(ops))
			for i := range ops {
				rows[i] = row{
					ID:        ops[i].ID,
					Type:      string(ops[i].OperationType),
					Source:    ops[i].Source,
					LeadCount: ops[i].LeadCount,
					CreatedAt: ops[i].CreatedAt.Format("2006-01-02 15:04:05"),
					Reverted:  ops[i].IsReverted(),
					CanUndo:   a.undo.CanUndo(&ops[i]),
				}
			}
			return printJSON(rows)
		})
	},
}

func init() {
	operationsCmd.Flags().IntVar(&operationsLimit, "limit", 10, "number of operations to show (max 100)")
	rootCmd.AddCommand(undoCmd, operationsCmd)
}
