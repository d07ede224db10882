package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// GoogleBackend writes to Google Sheets through the v4 values API
type GoogleBackend struct {
	svc *sheetsapi.Service
}

// NewGoogleBackend authenticates with a service account key.
// The key comes from configuration or the SHEETS-SERVICE-ACCOUNT secret; credentialsFile is a fallback path.
func NewGoogleBackend(ctx context.Context, credentialsJSON, credentialsFile string) (*GoogleBackend, error) {
	raw := []byte(credentialsJSON)
	if len(raw) == 0 && credentialsFile != "" {
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheets credentials file: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, errors.New("sheets service account credentials are not configured")
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheets credentials: %w", err)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(nil, creds.TokenSource)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &GoogleBackend{svc: svc}, nil
}

// NewGoogleBackendWithService wraps an already configured client
func NewGoogleBackendWithService(svc *sheetsapi.Service) *GoogleBackend {
	return &GoogleBackend{svc: svc}
}

// WriteColumn updates the A1 range for the run with one column of values
func (b *GoogleBackend) WriteColumn(ctx context.Context, spreadsheetID, sheetName, column string, startRow int, values []any) error {
	rng := CellRange(sheetName, column, startRow, len(values))
	body := &sheetsapi.ValueRange{
		Range:          rng,
		MajorDimension: "COLUMNS",
		Values:         [][]interface{}{values},
	}

	_, err := b.svc.Spreadsheets.Values.Update(spreadsheetID, rng, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return classifyGoogleError("values.update", err)
	}
	return nil
}

var rateLimitReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"quotaExceeded":         {},
}

func classifyGoogleError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return newError(KindAuth, op, err)
		case gerr.Code == http.StatusForbidden:
			if isRateLimited(gerr) {
				return newError(KindTransient, op, err)
			}
			return newError(KindAuth, op, err)
		case gerr.Code == http.StatusBadRequest, gerr.Code == http.StatusNotFound:
			return newError(KindConfig, op, err)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return newError(KindTransient, op, err)
		default:
			return newError(KindConfig, op, err)
		}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return newError(KindAuth, op, err)
	}

	// network failures and anything unrecognised
	return newError(KindTransient, op, err)
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if _, ok := rateLimitReasons[item.Reason]; ok {
			return true
		}
	}
	return strings.Contains(strings.ToLower(gerr.Message), "quota")
}
