// Package google exports receipt summaries to a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/sheets"
)

// Columns cleared before each export, so a shorter table leaves no stale rows.
const summaryColumns = "A:C"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	rng           string
	logger        *applog.Logger
}

var _ sheets.SummaryExporter = (*Client)(nil)

// Options configures a Client. CredentialsJSON wins over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	Range           string
	CredentialsJSON string
	CredentialsFile string
	Logger          *applog.Logger

	// ClientOptions replace credential handling, e.g. to point at a fake
	// endpoint in tests.
	ClientOptions []goption.ClientOption
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, fmt.Errorf("%w: missing GOOGLE_SPREADSHEET_ID", core.ErrConfig)
	}
	if opts.Range == "" {
		opts.Range = "Receipts!A1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		credentialsJSON, err := loadCredentials(opts)
		if err != nil {
			return nil, err
		}
		logger.DebugContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create sheets service: %v", core.ErrConfig, err)
	}
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, rng: opts.Range, logger: logger}, nil
}

func loadCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case opts.CredentialsFile != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read service account file: %v", core.ErrConfig, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)", core.ErrConfig)
	}
}

// ExportSummary clears the summary columns of the target sheet and writes
// table starting at the configured range.
func (c *Client) ExportSummary(ctx context.Context, table sheets.Table) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheetName, _, _ := strings.Cut(c.rng, "!")
	clearRange := sheetName + "!" + summaryColumns
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("%w: clear %s: %v", core.ErrTransport, clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: table.Cells()}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: update %s: %v", core.ErrTransport, c.rng, err)
	}

	c.logger.InfoContext(ctx, "Summary exported",
		applog.FieldOperation, applog.OpExport,
		"range", resp.UpdatedRange,
		"rows", resp.UpdatedRows)
	return resp.UpdatedRange, nil
}
