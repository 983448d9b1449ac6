package serverapp

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

	"github.com/taras/graphsheets/internal/schema/schematest"
	"github.com/taras/graphsheets/internal/store/sheets"
)

// emptySpreadsheet answers with a spreadsheet that has no sheets and counts
// the write requests it receives.
type emptySpreadsheet struct {
	mu     sync.Mutex
	writes []string
}

func (e *emptySpreadsheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodPost {
		e.writes = append(e.writes, strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/book"))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "book"})
}

func newSheetsStore(t *testing.T, h http.Handler) *sheets.Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	st, err := sheets.New(context.Background(), sheets.Config{
		SpreadsheetID: "book",
		HTTPClient:    srv.Client(),
		APIBase:       srv.URL,
		Logger:        testLogger().Logger,
	})
	require.NoError(t, err)
	return st
}

func TestPrepareSheets(t *testing.T) {
	sch := schematest.Load(t, schematest.Create)

	t.Run("migrate provisions", func(t *testing.T) {
		fake := &emptySpreadsheet{}
		st := newSheetsStore(t, fake)

		require.NoError(t, prepareSheets(context.Background(), true, testLogger(), st, sch))
		assert.Equal(t, []string{":batchUpdate", "/values:batchUpdate"}, fake.writes)
	})

	t.Run("without migrate nothing is written", func(t *testing.T) {
		fake := &emptySpreadsheet{}
		st := newSheetsStore(t, fake)

		require.NoError(t, prepareSheets(context.Background(), false, testLogger(), st, sch))
		assert.Empty(t, fake.writes)
	})
}
