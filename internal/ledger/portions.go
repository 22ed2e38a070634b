package ledger

import (
	"time"

	"sagra-pos/internal/models"
)

func (l *ledger) SetDailyPortions(portions models.DailyPortions) {
	l.portions = portions.Clone()
	if l.portions.Items == nil {
		l.portions.Items = make(map[string]models.PortionCounter)
	}
}

func (l *ledger) DailyPortions() models.DailyPortions {
	return l.portions.Clone()
}

// AdjustPortionManually corrects a counter by delta, never below zero.
// Unknown keys are ignored.
func (l *ledger) AdjustPortionManually(key string, delta int) {
	counter, ok := l.portions.Items[key]
	if !ok {
		return
	}
	counter.Remaining = clamp(counter.Remaining + delta)
	l.portions.Items[key] = counter
}

func (l *ledger) ResetSinglePortion(key string, catalog models.Catalog) {
	item, ok := catalog.Find(key)
	if !ok {
		return
	}
	l.portions.Items[key] = freshCounter(item)
}

func (l *ledger) ForceReloadAllPortions(catalog models.Catalog) {
	l.portions = FreshPortions(l.portions.BusinessDay, catalog)
}

// FreshPortions derives a counter set for day from the catalog limits.
func FreshPortions(day string, catalog models.Catalog) models.DailyPortions {
	items := make(map[string]models.PortionCounter, len(catalog))
	for _, item := range catalog {
		items[item.Key] = freshCounter(item)
	}
	return models.DailyPortions{BusinessDay: day, Items: items}
}

func freshCounter(item models.MenuItem) models.PortionCounter {
	counter := models.PortionCounter{IsLimited: item.IsLimited()}
	if item.DailyPortionLimit != nil {
		counter.Remaining = clamp(*item.DailyPortionLimit)
	}
	if item.CriticalThreshold != nil {
		counter.CriticalThreshold = clamp(*item.CriticalThreshold)
	}
	return counter
}

// PortionState is the state of the daily-portion rollover machine.
type PortionState int

const (
	NoCounterForToday PortionState = iota
	CounterLoaded
)

func (s PortionState) String() string {
	if s == CounterLoaded {
		return "counter_loaded"
	}
	return "no_counter_for_today"
}

// Rollover computes business days in a fixed timezone. The business day
// changes at Hour, not at midnight.
type Rollover struct {
	Location *time.Location
	Hour     int
}

// BusinessDay returns the YYYY-MM-DD business day that now belongs to.
func (r Rollover) BusinessDay(now time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	if t.Hour() < r.Hour {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02")
}

// Resolve decides which counter set applies at now given the persisted
// document, if any. A persisted document for the current business day is kept
// as is, gaining only counters for catalog items it does not know yet. Any
// other case yields a fresh set that the caller must persist, reported by
// created being true.
func (r Rollover) Resolve(now time.Time, persisted *models.DailyPortions, catalog models.Catalog) (portions models.DailyPortions, created bool) {
	day := r.BusinessDay(now)

	if persisted != nil && persisted.BusinessDay == day {
		portions = persisted.Clone()
		for _, item := range catalog {
			if _, ok := portions.Items[item.Key]; !ok {
				portions.Items[item.Key] = freshCounter(item)
			}
		}
		return portions, false
	}

	return FreshPortions(day, catalog), true
}
