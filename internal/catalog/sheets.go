package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Record is one spreadsheet row keyed by the header cell of its column.
type Record map[string]string

// Sheet is the mapped content of one requested range.
type Sheet struct {
	ID      string
	Records []Record
}

// APIError is returned for non-2xx responses of the spreadsheet API.
type APIError struct {
	Status int
	URL    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request to %s failed with %d: %s", e.URL, e.Status, http.StatusText(e.Status))
}

// SheetsClient reads ranges with the values:batchGet endpoint.
type SheetsClient struct {
	baseURL string
	apiKey  string
	sheetID string
	http    *http.Client
}

func NewSheetsClient(baseURL, apiKey, sheetID string, timeout time.Duration) *SheetsClient {
	return &SheetsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		sheetID: sheetID,
		http:    &http.Client{Timeout: timeout},
	}
}

type valueRange struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

type batchGetResponse struct {
	SpreadsheetID string       `json:"spreadsheetId"`
	ValueRanges   []valueRange `json:"valueRanges"`
}

// BatchGet fetches the given ranges and maps each to records.
func (c *SheetsClient) BatchGet(ctx context.Context, ranges ...string) ([]Sheet, error) {
	endpoint := fmt.Sprintf("%s/%s/values:batchGet", c.baseURL, url.PathEscape(c.sheetID))

	query := url.Values{}
	for _, r := range ranges {
		query.Add("ranges", r)
	}
	query.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheets request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sheets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, URL: endpoint}
	}

	var body batchGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode sheets response: %w", err)
	}

	sheets := make([]Sheet, 0, len(body.ValueRanges))
	for _, vr := range body.ValueRanges {
		sheets = append(sheets, MapValueRange(vr.Range, vr.Values))
	}
	return sheets, nil
}

// MapValueRange turns raw rows into records. The first row is the header,
// rows without cells are skipped and short rows only carry the cells they have.
func MapValueRange(rangeName string, rows [][]string) Sheet {
	id := strings.ReplaceAll(strings.SplitN(rangeName, "!", 2)[0], "'", "")
	sheet := Sheet{ID: id, Records: []Record{}}
	if len(rows) == 0 {
		return sheet
	}

	header := rows[0]
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		rec := make(Record, len(row))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = cell
		}
		sheet.Records = append(sheet.Records, rec)
	}
	return sheet
}
