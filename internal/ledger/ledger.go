// Package ledger holds the in-memory model of the order being taken at the
// till: one line per menu item with its quantity and kitchen note, and the
// remaining daily portions of limited items.
//
// A Ledger is not safe for concurrent use. The order service owns exactly one
// and applies every mutation from a single goroutine.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"sagra-pos/internal/models"
)

// ErrInvalidPayment is returned when cash tendered does not cover the total.
var ErrInvalidPayment = errors.New("invalid payment")

// PaymentError carries the shortfall of a rejected cash payment.
type PaymentError struct {
	TotalCents     int64
	TenderedCents  int64
	ShortfallCents int64
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("invalid payment: tendered %d of %d cents, short by %d cents",
		e.TenderedCents, e.TotalCents, e.ShortfallCents)
}

func (e *PaymentError) Is(target error) bool {
	return target == ErrInvalidPayment
}

// Ledger is the order ledger of one till.
type Ledger interface {
	// Initialize replaces every line with a zero-quantity, empty-note line
	// for each catalog item.
	Initialize(catalog models.Catalog)
	IncrementQuantity(key string)
	DecrementQuantity(key string)
	EditNote(key, text string)
	ComputeTotalCents() int64
	BuildTicket(amountTenderedCents int64, mode models.PaymentMode) (models.OrderTicket, error)
	// ConfirmAndDecrementPortions decrements the limited counters by the
	// quantities sold on ticket and returns what must be persisted remotely.
	ConfirmAndDecrementPortions(ticket models.OrderTicket) models.PortionDecrement
	ResetOrder()

	SetDailyPortions(portions models.DailyPortions)
	DailyPortions() models.DailyPortions
	AdjustPortionManually(key string, delta int)
	ResetSinglePortion(key string, catalog models.Catalog)
	ForceReloadAllPortions(catalog models.Catalog)

	HasLine(key string) bool
	Catalog() models.Catalog
	Warnings() []string
	View() View
}

type line struct {
	item     models.MenuItem
	quantity int
	note     string
}

type ledger struct {
	catalog  models.Catalog
	lines    map[string]*line
	order    []string
	portions models.DailyPortions
	now      func() time.Time
}

// New returns an empty ledger. A nil clock defaults to time.Now.
func New(clock func() time.Time) Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &ledger{
		lines:    make(map[string]*line),
		portions: models.DailyPortions{Items: make(map[string]models.PortionCounter)},
		now:      clock,
	}
}

func (l *ledger) Initialize(catalog models.Catalog) {
	l.catalog = append(models.Catalog(nil), catalog...)
	l.lines = make(map[string]*line, len(catalog))
	l.order = l.order[:0]

	sorted := append(models.Catalog(nil), catalog...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayOrder < sorted[j].DisplayOrder
	})
	for _, item := range sorted {
		if _, dup := l.lines[item.Key]; dup {
			continue
		}
		l.lines[item.Key] = &line{item: item}
		l.order = append(l.order, item.Key)
	}
}

func (l *ledger) IncrementQuantity(key string) {
	if ln, ok := l.lines[key]; ok {
		ln.quantity++
	}
}

func (l *ledger) DecrementQuantity(key string) {
	if ln, ok := l.lines[key]; ok && ln.quantity > 0 {
		ln.quantity--
	}
}

func (l *ledger) EditNote(key, text string) {
	if ln, ok := l.lines[key]; ok {
		ln.note = text
	}
}

func (l *ledger) ComputeTotalCents() int64 {
	var total int64
	for _, ln := range l.lines {
		total += ln.item.UnitPriceCents * int64(ln.quantity)
	}
	return total
}

func (l *ledger) BuildTicket(amountTenderedCents int64, mode models.PaymentMode) (models.OrderTicket, error) {
	total := l.ComputeTotalCents()

	var change int64
	switch mode {
	case models.PaymentCash:
		if amountTenderedCents < total {
			return models.OrderTicket{}, &PaymentError{
				TotalCents:     total,
				TenderedCents:  amountTenderedCents,
				ShortfallCents: total - amountTenderedCents,
			}
		}
		change = amountTenderedCents - total
	case models.PaymentCard, models.PaymentComplimentary:
		// nothing is tendered in cash, so no change is owed
		change = 0
	default:
		return models.OrderTicket{}, fmt.Errorf("%w: %q", models.ErrUnknownPaymentMode, mode)
	}

	lines := make([]models.TicketLine, 0, len(l.order))
	for _, key := range l.order {
		ln := l.lines[key]
		if ln.quantity == 0 {
			continue
		}
		lines = append(lines, models.TicketLine{
			Key:            key,
			Name:           ln.item.Name(),
			DisplayName:    append([]string(nil), ln.item.DisplayName...),
			UnitPriceCents: ln.item.UnitPriceCents,
			Quantity:       ln.quantity,
			Note:           ln.note,
		})
	}

	return models.OrderTicket{
		BusinessDay:         l.portions.BusinessDay,
		Lines:               lines,
		TotalCents:          total,
		AmountTenderedCents: amountTenderedCents,
		PaymentMode:         mode,
		ChangeDueCents:      change,
		CreatedAt:           l.now(),
	}, nil
}

func (l *ledger) ConfirmAndDecrementPortions(ticket models.OrderTicket) models.PortionDecrement {
	dec := models.PortionDecrement{
		BusinessDay: l.portions.BusinessDay,
		Quantities:  make(map[string]int),
	}
	for _, tl := range ticket.Lines {
		counter, ok := l.portions.Items[tl.Key]
		if !ok || !counter.IsLimited || tl.Quantity <= 0 {
			continue
		}
		counter.Remaining = clamp(counter.Remaining - tl.Quantity)
		l.portions.Items[tl.Key] = counter
		dec.Quantities[tl.Key] += tl.Quantity
	}
	return dec
}

func (l *ledger) ResetOrder() {
	l.Initialize(l.catalog)
}

func (l *ledger) HasLine(key string) bool {
	_, ok := l.lines[key]
	return ok
}

func (l *ledger) Catalog() models.Catalog {
	return append(models.Catalog(nil), l.catalog...)
}

// Warnings lists the keys of lines that carry a note but no quantity.
func (l *ledger) Warnings() []string {
	var keys []string
	for _, key := range l.order {
		ln := l.lines[key]
		if ln.quantity == 0 && ln.note != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
