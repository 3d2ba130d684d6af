package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

func obligationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obligations",
		Short: "List tracked obligations",
		RunE:  runObligations,
	}

	cmd.Flags().StringP("user", "u", "", "User id to list obligations for")
	cmd.Flags().StringP("type", "t", "", "Filter by entity type (subscription, bill, loan)")
	cmd.Flags().StringP("category", "c", "", "Filter by category")

	return cmd
}

func runObligations(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	userFlag, _ := cmd.Flags().GetString("user")
	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}

	typeFlag, _ := cmd.Flags().GetString("type")
	category, _ := cmd.Flags().GetString("category")

	filter := service.ObligationFilter{Category: category}
	if typeFlag != "" {
		filter.Type = model.EntityType(typeFlag)
		if !filter.Type.Valid() {
			return fmt.Errorf("invalid entity type %q: expected subscription, bill, or loan", typeFlag)
		}
	}
	if category != "" && !model.KnownCategory(category) {
		return fmt.Errorf("unknown category %q", category)
	}

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	obligations, err := store.ListObligations(ctx, user, filter)
	if err != nil {
		return fmt.Errorf("failed to list obligations: %w", err)
	}

	printObligations(obligations)
	return nil
}

func printObligations(obligations []model.ObligationRecord) {
	if len(obligations) == 0 {
		fmt.Println("No obligations tracked yet. Run 'billflow scan' first.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MERCHANT\tTYPE\tCATEGORY\tAMOUNT\tDUE\tAUTO-DEBIT\tSTATUS\tSOURCES")
	for _, o := range obligations {
		due := "-"
		if o.DueDate != nil {
			due = o.DueDate.Format("2006-01-02")
		}
		autoDebit := "no"
		if o.AutoDebit {
			autoDebit = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%d\n",
			o.Merchant, o.Type, o.Category,
			o.Amount.StringFixed(2), o.Currency,
			due, autoDebit, o.Status, len(o.SourceEmailIDs))
	}
	_ = w.Flush()
}
