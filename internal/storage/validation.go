package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrObligationNotFound = fmt.Errorf("obligation %w", common.ErrNotFound)
	ErrRunNotFound        = fmt.Errorf("run %w", common.ErrNotFound)
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateObligation checks a record before it touches the database.
func validateObligation(o *model.ObligationRecord) error {
	if o == nil {
		return fmt.Errorf("%w: obligation", ErrNilParameter)
	}
	return o.Validate()
}

// validateRun checks a run record before it touches the database.
func validateRun(r *model.RunRecord) error {
	if r == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: run id", ErrEmptyString)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: run user id", ErrEmptyString)
	}
	return nil
}
