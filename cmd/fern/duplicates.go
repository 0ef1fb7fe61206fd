package main

import (
	"context"

	"github.com/spf13/cobra"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List groups of leads that look like the same business",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			groups, err := a.merging.FindDuplicates(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(groups)
		})
	},
}

var mergeMaster string

var mergeCmd = &cobra.Command{
	Use:   "merge <lead-id> <lead-id>... --master <lead-id>",
	Short: "Merge duplicate leads into a master lead",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			master, err := a.merging.MergeGroup(ctx, user, args, mergeMaster)
			if err != nil {
				return err
			}
			return printJSON(master)
		})
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Backfill match keys on existing leads (runs once per user)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, err := requireUser()
		if err != nil {
			return err
		}

		return run(cmd.Context(), func(ctx context.Context, a *app) error {
			job, err := a.normalizer.EnsureNormalized(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(job)
		})
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeMaster, "master", "", "lead that survives the merge (required)")
	_ = mergeCmd.MarkFlagRequired("master")
	duplicatesCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(duplicatesCmd, normalizeCmd)
}
