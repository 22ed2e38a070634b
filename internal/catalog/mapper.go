package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"sagra-pos/internal/models"
	"sagra-pos/internal/money"
)

// Spreadsheet column names.
const (
	colName              = "name"
	colEuroCents         = "euroCents"
	colPrice             = "price"
	colDailyPortions     = "dailyPortions"
	colCriticalThreshold = "criticalThreshold"
	colOrder             = "order"
	colDescription       = "description"
	colColor             = "color"
)

// FieldError reports a cell that could not be mapped.
type FieldError struct {
	Row    int
	Column string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ItemKey derives the stable key of an item from its display lines.
func ItemKey(displayName []string) string {
	return norm.NFC.String(strings.Join(displayName, " "))
}

// SplitName splits a name cell into display lines on "|" or newlines.
func SplitName(cell string) []string {
	parts := strings.FieldsFunc(cell, func(r rune) bool {
		return r == '|' || r == '\n' || r == '\r'
	})
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Join(strings.Fields(norm.NFC.String(p)), " "); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

// ToMenuItem maps one record. row is the 1-based data row used in errors and
// as the display order when the sheet has no order column.
func ToMenuItem(rec Record, row int) (models.MenuItem, error) {
	item := models.MenuItem{
		DisplayName:  SplitName(rec[colName]),
		Description:  strings.TrimSpace(rec[colDescription]),
		Color:        strings.TrimSpace(rec[colColor]),
		DisplayOrder: row,
	}
	item.Key = ItemKey(item.DisplayName)

	price, err := parsePrice(rec)
	if err != nil {
		return models.MenuItem{}, &FieldError{Row: row, Column: colPrice, Err: err}
	}
	item.UnitPriceCents = price

	if item.DailyPortionLimit, err = optionalInt(rec[colDailyPortions]); err != nil {
		return models.MenuItem{}, &FieldError{Row: row, Column: colDailyPortions, Err: err}
	}
	if item.CriticalThreshold, err = optionalInt(rec[colCriticalThreshold]); err != nil {
		return models.MenuItem{}, &FieldError{Row: row, Column: colCriticalThreshold, Err: err}
	}

	if order, err := optionalInt(rec[colOrder]); err != nil {
		return models.MenuItem{}, &FieldError{Row: row, Column: colOrder, Err: err}
	} else if order != nil {
		item.DisplayOrder = *order
	}

	return item, nil
}

// parsePrice prefers integer cents and falls back to a decimal euro price.
func parsePrice(rec Record) (int64, error) {
	if raw := strings.TrimSpace(rec[colEuroCents]); raw != "" {
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid cents %q", raw)
		}
		return cents, nil
	}
	if raw := strings.TrimSpace(rec[colPrice]); raw != "" {
		return money.ParseEuros(raw)
	}
	return 0, fmt.Errorf("missing price")
}

func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	return &v, nil
}
