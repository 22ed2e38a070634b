package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchGetBody = `{
  "spreadsheetId": "sheet-1",
  "valueRanges": [{
    "range": "'menu'!A1:Z1000",
    "majorDimension": "ROWS",
    "values": [
      ["name", "price", "dailyPortions", "criticalThreshold"],
      ["Pizza", "7,00", "10", "3"],
      [],
      ["Testaroli|al pesto", "9"]
    ]
  }]
}`

func TestSheetsClient_BatchGet(t *testing.T) {
	var gotPath, gotRanges, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRanges = r.URL.Query().Get("ranges")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(batchGetBody))
	}))
	defer srv.Close()

	client := NewSheetsClient(srv.URL+"/", "secret", "sheet-1", time.Second)
	sheets, err := client.BatchGet(context.Background(), "menu")
	require.NoError(t, err)

	assert.Equal(t, "/sheet-1/values:batchGet", gotPath)
	assert.Equal(t, "menu", gotRanges)
	assert.Equal(t, "secret", gotKey)

	require.Len(t, sheets, 1)
	assert.Equal(t, "menu", sheets[0].ID)
	require.Len(t, sheets[0].Records, 2)
	assert.Equal(t, Record{"name": "Pizza", "price": "7,00", "dailyPortions": "10", "criticalThreshold": "3"}, sheets[0].Records[0])
	assert.Equal(t, Record{"name": "Testaroli|al pesto", "price": "9"}, sheets[0].Records[1])
}

func TestSheetsClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewSheetsClient(srv.URL, "bad", "sheet-1", time.Second)
	_, err := client.BatchGet(context.Background(), "menu")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestMapValueRange_Empty(t *testing.T) {
	sheet := MapValueRange("menu!A1:Z", nil)
	assert.Equal(t, "menu", sheet.ID)
	assert.Empty(t, sheet.Records)

	sheet = MapValueRange("menu", [][]string{{"name", "price"}})
	assert.Empty(t, sheet.Records)
}
