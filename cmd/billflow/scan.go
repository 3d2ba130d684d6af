package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/dedup"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/extract"
	"github.com/Veraticus/the-bills-must-flow/internal/ingest"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/notify"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/validate"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the inbox for financial obligations",
		Long: `Fetches recent financial emails, extracts the obligations they
describe, and folds them into your ledger. Repeat observations of the
same obligation are merged, not duplicated.`,
		RunE: runScan,
	}

	cmd.Flags().StringP("user", "u", "", "User id to scan for")
	cmd.Flags().IntP("days", "d", 180, "How many days back to search")
	cmd.Flags().IntP("max", "m", 100, "Maximum number of emails to fetch")
	cmd.Flags().Int("concurrency", 4, "Concurrent extraction calls")

	_ = viper.BindPFlag("scan.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("scan.max", cmd.Flags().Lookup("max"))
	_ = viper.BindPFlag("scan.concurrency", cmd.Flags().Lookup("concurrency"))

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	userFlag, _ := cmd.Flags().GetString("user")
	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	oracle, err := extract.NewOpenAIOracle(extract.OpenAIConfig{
		APIKey:  viper.GetString("openai.api_key"),
		Model:   viper.GetString("openai.model"),
		BaseURL: viper.GetString("openai.base_url"),
	})
	if err != nil {
		return fmt.Errorf("failed to create extraction oracle: %w", err)
	}

	clientCfg := extract.DefaultClientConfig()
	if c := viper.GetInt("scan.concurrency"); c > 0 {
		clientCfg.Concurrency = c
	}
	if clientCfg.Retry, err = retryOptionsFromViper(); err != nil {
		return err
	}
	extractor := extract.NewClient(oracle, clientCfg)

	validateCfg, err := validateConfigFromViper()
	if err != nil {
		return err
	}
	dedupCfg, err := dedupConfigFromViper()
	if err != nil {
		return err
	}

	inbox, err := ingest.NewGmailInbox(ctx, ingest.GmailConfig{
		ClientID:     viper.GetString("gmail.client_id"),
		ClientSecret: viper.GetString("gmail.client_secret"),
		AccessToken:  viper.GetString("gmail.access_token"),
		RefreshToken: viper.GetString("gmail.refresh_token"),
	})
	if err != nil {
		return fmt.Errorf("failed to create gmail inbox: %w", err)
	}

	eng := engine.New(store, inbox, extractor,
		validate.New(validateCfg),
		dedup.New(dedupCfg),
		notify.NewLogNotifier())

	days := viper.GetInt("scan.days")
	maxCount := viper.GetInt("scan.max")

	var bar *progressbar.ProgressBar
	run, err := eng.Run(ctx, user, engine.BatchConfig{
		Since:    time.Now().AddDate(0, 0, -days),
		MaxCount: maxCount,
		Progress: func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Extracting obligations"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish())
			}
			_ = bar.Set(done)
		},
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printRun(run)

	if run.Status != model.RunCompleted {
		return fmt.Errorf("run %s finished with status %s", run.ID, run.Status)
	}

	obligations, err := store.ListObligations(ctx, user, service.ObligationFilter{})
	if err != nil {
		return fmt.Errorf("failed to list obligations: %w", err)
	}
	printObligations(obligations)

	return nil
}

func printRun(run *model.RunRecord) {
	fmt.Printf("\nRun %s: %s\n", run.ID, run.Status)
	fmt.Printf("  fetched %d, extracted %d, stored %d, failed %d\n",
		run.Counters.Fetched, run.Counters.Extracted,
		run.Counters.Stored, run.Counters.Failed)

	if run.Counters.Stored > 0 {
		fmt.Printf("  %d subscriptions, %d bills, %d loans (total %s %s)\n",
			run.Summary.Subscriptions, run.Summary.Bills, run.Summary.Loans,
			run.Summary.TotalAmount, run.Summary.Currency)
	}

	for _, f := range run.Failures {
		fmt.Printf("  failed [%s] %s: %s\n", f.Stage, f.SourceID, f.Reason)
	}
}
