package models

import "strings"

// MenuItem is one orderable entry of the festival menu
type MenuItem struct {
	Key               string   `json:"key"`
	DisplayName       []string `json:"display_name"`
	Description       string   `json:"description,omitempty"`
	Color             string   `json:"color,omitempty"`
	UnitPriceCents    int64    `json:"unit_price_cents"`
	DailyPortionLimit *int     `json:"daily_portion_limit,omitempty"`
	CriticalThreshold *int     `json:"critical_threshold,omitempty"`
	DisplayOrder      int      `json:"display_order"`
}

// Name joins the display lines into a single-line label
func (m MenuItem) Name() string {
	return strings.Join(m.DisplayName, " ")
}

// IsLimited reports whether the item has a configured daily portion limit
func (m MenuItem) IsLimited() bool {
	return m.DailyPortionLimit != nil
}

// Catalog is the ordered menu loaded for the session
type Catalog []MenuItem

// Find returns the item with the given key
func (c Catalog) Find(key string) (MenuItem, bool) {
	for _, item := range c {
		if item.Key == key {
			return item, true
		}
	}
	return MenuItem{}, false
}

// IntPtr is a helper for optional integer fields
func IntPtr(v int) *int {
	return &v
}
