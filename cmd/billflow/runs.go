package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show processing runs",
		Long: `Without arguments, lists the user's runs most recent first. With a
run id, shows that run's full audit record including per-item failures.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRuns,
	}

	cmd.Flags().StringP("user", "u", "", "User id to list runs for")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", args[0], err)
		}
		printRunDetail(run)
		return nil
	}

	userFlag, _ := cmd.Flags().GetString("user")
	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}

	runs, err := store.GetRunsByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs yet. Run 'billflow scan' first.")
		return nil
	}

	for i := range runs {
		run := &runs[i]
		fmt.Printf("%s  %s  %-20s  fetched %d, stored %d, failed %d\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04"),
			run.Status, run.Counters.Fetched, run.Counters.Stored, run.Counters.Failed)
	}
	return nil
}

func printRunDetail(run *model.RunRecord) {
	fmt.Printf("Run %s (%s)\n", run.ID, run.UserID)
	fmt.Printf("  status:    %s\n", run.Status)
	fmt.Printf("  started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("  completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	c := run.Counters
	fmt.Printf("  counters:  fetched %d, normalized %d, extracted %d, validated %d, classified %d, deduplicated %d, stored %d, failed %d\n",
		c.Fetched, c.Normalized, c.Extracted, c.Validated, c.Classified, c.Deduplicated, c.Stored, c.Failed)

	if c.Stored > 0 {
		fmt.Printf("  summary:   %d subscriptions, %d bills, %d loans (total %s %s)\n",
			run.Summary.Subscriptions, run.Summary.Bills, run.Summary.Loans,
			run.Summary.TotalAmount, run.Summary.Currency)
	}

	for _, id := range run.ObligationIDs {
		fmt.Printf("  obligation: %s\n", id)
	}
	for _, f := range run.Failures {
		fmt.Printf("  failure [%s] %s: %s\n", f.Stage, f.SourceID, f.Reason)
	}
}
