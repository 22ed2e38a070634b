package models

import "time"

// PortionCounter tracks the remaining daily portions of one menu item
type PortionCounter struct {
	Remaining         int  `json:"remaining"`
	CriticalThreshold int  `json:"critical_threshold"`
	IsLimited         bool `json:"is_limited"`
}

// Scarce reports whether the counter is at or below its critical threshold
func (p PortionCounter) Scarce() bool {
	return p.IsLimited && p.Remaining <= p.CriticalThreshold
}

// DailyPortions is the per-business-day document of portion counters
type DailyPortions struct {
	BusinessDay string                    `json:"business_day"`
	Items       map[string]PortionCounter `json:"items"`
	UpdatedAt   time.Time                 `json:"updated_at,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine
func (d DailyPortions) Clone() DailyPortions {
	items := make(map[string]PortionCounter, len(d.Items))
	for k, v := range d.Items {
		items[k] = v
	}
	return DailyPortions{BusinessDay: d.BusinessDay, Items: items, UpdatedAt: d.UpdatedAt}
}

// PortionDecrement is the amount sold per item key on one business day
type PortionDecrement struct {
	BusinessDay string         `json:"business_day"`
	Quantities  map[string]int `json:"quantities"`
}

// Empty reports whether there is nothing to persist
func (d PortionDecrement) Empty() bool {
	return len(d.Quantities) == 0
}
