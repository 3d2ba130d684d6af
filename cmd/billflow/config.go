package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/dedup"
	"github.com/Veraticus/the-bills-must-flow/internal/extract"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/validate"
)

// setTuningDefaults registers the pipeline tunables with viper so the
// config file and BILLFLOW_ environment variables can override them.
func setTuningDefaults() {
	d := dedup.DefaultConfig()
	viper.SetDefault("dedup.similarity", d.SimilarityThreshold)
	viper.SetDefault("dedup.amount_rel_tolerance", d.AmountRelTolerance)
	viper.SetDefault("dedup.amount_abs_tolerance", d.AmountAbsTolerance.String())
	viper.SetDefault("dedup.bill_window_days", int(d.BillDateWindow/(24*time.Hour)))
	viper.SetDefault("dedup.loan_window_days", int(d.LoanDateWindow/(24*time.Hour)))
	viper.SetDefault("dedup.subscription_window_days", int(d.SubscriptionDateWindow/(24*time.Hour)))

	v := validate.DefaultConfig()
	viper.SetDefault("validate.default_currency", v.DefaultCurrency)
	viper.SetDefault("validate.max_date_skew_years", v.MaxDateSkewYears)

	r := extract.DefaultClientConfig().Retry
	viper.SetDefault("retry.max_attempts", r.MaxAttempts)
	viper.SetDefault("retry.initial_delay", r.InitialDelay)
	viper.SetDefault("retry.max_delay", r.MaxDelay)
	viper.SetDefault("retry.multiplier", r.Multiplier)
}

// dedupConfigFromViper builds the deduplication tunables from config.
func dedupConfigFromViper() (dedup.Config, error) {
	cfg := dedup.Config{
		SimilarityThreshold:    viper.GetFloat64("dedup.similarity"),
		AmountRelTolerance:     viper.GetFloat64("dedup.amount_rel_tolerance"),
		BillDateWindow:         time.Duration(viper.GetInt("dedup.bill_window_days")) * 24 * time.Hour,
		LoanDateWindow:         time.Duration(viper.GetInt("dedup.loan_window_days")) * 24 * time.Hour,
		SubscriptionDateWindow: time.Duration(viper.GetInt("dedup.subscription_window_days")) * 24 * time.Hour,
	}

	abs, err := decimal.NewFromString(viper.GetString("dedup.amount_abs_tolerance"))
	if err != nil {
		return dedup.Config{}, fmt.Errorf("%w: dedup.amount_abs_tolerance is not a decimal: %v", common.ErrInvalidConfig, err)
	}
	cfg.AmountAbsTolerance = abs

	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return dedup.Config{}, fmt.Errorf("%w: dedup.similarity %v outside (0, 1]", common.ErrInvalidConfig, cfg.SimilarityThreshold)
	}
	if cfg.AmountRelTolerance < 0 || cfg.AmountRelTolerance >= 1 {
		return dedup.Config{}, fmt.Errorf("%w: dedup.amount_rel_tolerance %v outside [0, 1)", common.ErrInvalidConfig, cfg.AmountRelTolerance)
	}
	if cfg.BillDateWindow <= 0 || cfg.LoanDateWindow <= 0 || cfg.SubscriptionDateWindow <= 0 {
		return dedup.Config{}, fmt.Errorf("%w: dedup date windows must be positive", common.ErrInvalidConfig)
	}

	return cfg, nil
}

// validateConfigFromViper builds the schema-validation tunables from config.
func validateConfigFromViper() (validate.Config, error) {
	cfg := validate.Config{
		DefaultCurrency:  viper.GetString("validate.default_currency"),
		MaxDateSkewYears: viper.GetInt("validate.max_date_skew_years"),
	}

	if len(cfg.DefaultCurrency) != 3 {
		return validate.Config{}, fmt.Errorf("%w: validate.default_currency %q is not a 3-letter code", common.ErrInvalidConfig, cfg.DefaultCurrency)
	}
	if cfg.MaxDateSkewYears <= 0 {
		return validate.Config{}, fmt.Errorf("%w: validate.max_date_skew_years must be positive, got %d", common.ErrInvalidConfig, cfg.MaxDateSkewYears)
	}

	return cfg, nil
}

// retryOptionsFromViper builds the oracle retry/backoff knobs from config.
func retryOptionsFromViper() (service.RetryOptions, error) {
	opts := service.RetryOptions{
		MaxAttempts:  viper.GetInt("retry.max_attempts"),
		InitialDelay: viper.GetDuration("retry.initial_delay"),
		MaxDelay:     viper.GetDuration("retry.max_delay"),
		Multiplier:   viper.GetFloat64("retry.multiplier"),
	}

	if opts.MaxAttempts <= 0 {
		return service.RetryOptions{}, fmt.Errorf("%w: retry.max_attempts must be positive, got %d", common.ErrInvalidConfig, opts.MaxAttempts)
	}
	if opts.InitialDelay <= 0 || opts.MaxDelay < opts.InitialDelay {
		return service.RetryOptions{}, fmt.Errorf("%w: retry delays must satisfy 0 < initial_delay <= max_delay", common.ErrInvalidConfig)
	}
	if opts.Multiplier < 1 {
		return service.RetryOptions{}, fmt.Errorf("%w: retry.multiplier must be at least 1, got %v", common.ErrInvalidConfig, opts.Multiplier)
	}

	return opts, nil
}
