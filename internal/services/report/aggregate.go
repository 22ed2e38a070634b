// Package report aggregates the order history into per-day and progressive
// sales totals.
package report

import (
	"sort"

	"sagra-pos/internal/ledger"
	"sagra-pos/internal/models"
)

// ProductTotal is what one product sold.
type ProductTotal struct {
	Quantity int   `json:"quantity"`
	Cents    int64 `json:"cents"`
}

// Day is the aggregation of one business day, or of a run of days.
type Day struct {
	BusinessDay string                       `json:"business_day"`
	Orders      int                          `json:"orders"`
	Products    map[string]ProductTotal      `json:"products"`
	TotalCents  int64                        `json:"total_cents"`
	ByMode      map[models.PaymentMode]int64 `json:"by_mode"`
}

func newDay(day string) *Day {
	d := &Day{
		BusinessDay: day,
		Products:    make(map[string]ProductTotal),
		ByMode:      make(map[models.PaymentMode]int64, len(models.PaymentModes)),
	}
	for _, mode := range models.PaymentModes {
		d.ByMode[mode] = 0
	}
	return d
}

func (d *Day) add(other *Day) {
	d.Orders += other.Orders
	d.TotalCents += other.TotalCents
	for name, p := range other.Products {
		cur := d.Products[name]
		cur.Quantity += p.Quantity
		cur.Cents += p.Cents
		d.Products[name] = cur
	}
	for mode, cents := range other.ByMode {
		d.ByMode[mode] += cents
	}
}

// RecordMode is the payment mode a record is attributed to. Records without
// a mode, or with one no longer recognised, count as cash.
func RecordMode(rec models.HistoryRecord) models.PaymentMode {
	mode, err := models.ParsePaymentMode(rec.PaymentMode)
	if err != nil {
		return models.DefaultPaymentMode
	}
	return mode
}

// RecordTotal is the amount a record contributes to its payment mode: the
// stored total, or the sum of its priced lines when the total is missing.
// It is never credited with the running total of the day so far.
func RecordTotal(rec models.HistoryRecord) int64 {
	if rec.TotalCents != nil {
		return *rec.TotalCents
	}
	var total int64
	for _, line := range rec.Lines {
		if line.UnitPriceCents != nil {
			total += *line.UnitPriceCents * int64(line.Quantity)
		}
	}
	return total
}

// Aggregate groups records by the business day of their creation time.
// Product totals only count lines that carry a unit price.
func Aggregate(records []models.HistoryRecord, rollover ledger.Rollover) map[string]*Day {
	days := make(map[string]*Day)

	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			continue
		}
		key := rollover.BusinessDay(rec.CreatedAt)
		day, ok := days[key]
		if !ok {
			day = newDay(key)
			days[key] = day
		}

		day.Orders++
		for _, line := range rec.Lines {
			p := day.Products[line.Name]
			p.Quantity += line.Quantity
			if line.UnitPriceCents != nil {
				cents := *line.UnitPriceCents * int64(line.Quantity)
				p.Cents += cents
				day.TotalCents += cents
			}
			day.Products[line.Name] = p
		}
		day.ByMode[RecordMode(rec)] += RecordTotal(rec)
	}

	return days
}

// SortedDays returns the business days of days in ascending order.
func SortedDays(days map[string]*Day) []string {
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Progressive sums every day up to and including day.
func Progressive(days map[string]*Day, day string) *Day {
	total := newDay(day)
	for _, k := range SortedDays(days) {
		if k > day {
			break
		}
		total.add(days[k])
	}
	return total
}

// Report pairs one business day with the progressive totals up to it.
type Report struct {
	BusinessDay string   `json:"business_day"`
	Day         *Day     `json:"day"`
	Progressive *Day     `json:"progressive"`
	Days        []string `json:"days"`
}

// Build returns the report of day. A day without orders yields an empty
// aggregation.
func Build(days map[string]*Day, day string) Report {
	d, ok := days[day]
	if !ok {
		d = newDay(day)
	}
	return Report{
		BusinessDay: day,
		Day:         d,
		Progressive: Progressive(days, day),
		Days:        SortedDays(days),
	}
}

// Normalize rewrites a record with its attributed mode and total spelled
// out, reporting whether anything changed.
func Normalize(rec models.HistoryRecord) (models.HistoryRecord, bool) {
	mode := string(RecordMode(rec))
	total := RecordTotal(rec)

	changed := rec.TotalCents == nil || rec.PaymentMode != mode
	rec.PaymentMode = mode
	rec.TotalCents = &total
	return rec, changed
}
