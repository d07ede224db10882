// Package sheets mirrors stored submissions into month-columned spreadsheets.
// Writes are best-effort: callers treat every error from this package as a
// degraded mirror, never as a failed submission.
package sheets

import (
	"context"
	"errors"
	"time"

	"github.com/straye-as/indicator-api/internal/config"
	"go.uber.org/zap"
)

// Backend writes one vertical run of values into a spreadsheet column
type Backend interface {
	WriteColumn(ctx context.Context, spreadsheetID, sheetName, column string, startRow int, values []any) error
}

// Adapter validates a write against the block layout and drives the backend
// with a bounded timeout and a single retry for transient failures.
type Adapter struct {
	backend      Backend
	writeTimeout time.Duration
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewAdapter creates an adapter around a backend
func NewAdapter(backend Backend, cfg *config.SheetsConfig, logger *zap.Logger) *Adapter {
	timeout := cfg.WriteTimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		backend:      backend,
		writeTimeout: timeout,
		retryBackoff: cfg.RetryBackoffDuration(),
		logger:       logger,
	}
}

// Write places values in the month column of the target block
func (a *Adapter) Write(ctx context.Context, target Target, month int, values []any) error {
	const op = "write"

	column, err := ColumnForMonth(month)
	if err != nil {
		return newError(KindConfig, op, err)
	}
	if target.SpreadsheetID == "" || target.SheetName == "" {
		return configErrorf(op, "block %d has no spreadsheet or sheet name", target.BlockIndex)
	}
	if target.StartRow < 1 {
		return configErrorf(op, "block %d start row %d is invalid", target.BlockIndex, target.StartRow)
	}
	if len(values) == 0 {
		return nil
	}
	lastRow := target.StartRow + len(values) - 1
	if target.EndRow != nil && lastRow > *target.EndRow {
		return configErrorf(op, "%d values need rows %d-%d but block %d ends at row %d",
			len(values), target.StartRow, lastRow, target.BlockIndex, *target.EndRow)
	}

	err = a.attempt(ctx, target, column, values)
	if err == nil || !IsRetryable(err) {
		return err
	}

	a.logger.Warn("Mirror write failed, retrying once",
		zap.String("spreadsheet_id", target.SpreadsheetID),
		zap.String("sheet_name", target.SheetName),
		zap.String("column", column),
		zap.Error(err),
	)

	timer := time.NewTimer(a.retryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return newError(KindTransient, op, ctx.Err())
	case <-timer.C:
	}

	return a.attempt(ctx, target, column, values)
}

func (a *Adapter) attempt(ctx context.Context, target Target, column string, values []any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	err := a.backend.WriteColumn(attemptCtx, target.SpreadsheetID, target.SheetName, column, target.StartRow, values)
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return err
	}
	// Backends are expected to classify; anything else is treated as a network-level failure.
	return newError(KindTransient, "write", err)
}
