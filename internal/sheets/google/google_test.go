package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kvitto/internal/core"
	"kvitto/internal/sheets"
)

type fakeSheets struct {
	mu      sync.Mutex
	cleared []string
	updated *gsheet.ValueRange
	query   string
	fail    bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, http.StatusInternalServerError)
		return
	}
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":clear"):
		f.cleared = append(f.cleared, r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		f.query = r.URL.RawQuery
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.updated = &vr
		_ = json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{
			UpdatedRange: "Receipts!A1:C3",
			UpdatedRows:  int64(len(vr.Values)),
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-id",
		Range:         "Receipts!A1",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	require.NoError(t, err)
	return c
}

func TestExportSummary(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	table := sheets.Table{{"Month", "Receipts", "Total"}, {"2024-01", "2", "20.00"}, {"Total", "2", "20.00"}}
	ref, err := c.ExportSummary(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, "Receipts!A1:C3", ref)

	require.Len(t, fake.cleared, 1)
	assert.Contains(t, fake.cleared[0], "sheet-id")
	assert.Contains(t, fake.query, "valueInputOption=USER_ENTERED")
	require.NotNil(t, fake.updated)
	require.Len(t, fake.updated.Values, 3)
	assert.Equal(t, "2024-01", fake.updated.Values[1][0])
	assert.Equal(t, "20.00", fake.updated.Values[1][2])
}

func TestExportSummaryFailure(t *testing.T) {
	c := newTestClient(t, &fakeSheets{fail: true})
	_, err := c.ExportSummary(context.Background(), sheets.Table{{"Month"}})
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = New(context.Background(), Options{SpreadsheetID: "id"})
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = New(context.Background(), Options{SpreadsheetID: "id", CredentialsFile: "/does/not/exist.json"})
	assert.ErrorIs(t, err, core.ErrConfig)
}
