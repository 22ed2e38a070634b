// Package ticket renders the printed copies of a confirmed order.
package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"sagra-pos/internal/models"
	"sagra-pos/internal/money"
)

const rule = "--------------------------------"

// PageBreak separates copies sent to the printer in one job.
const PageBreak = "\f"

// Renderer formats tickets for one event in its local time.
type Renderer struct {
	EventName string
	Location  *time.Location
}

func (r Renderer) local(t time.Time) time.Time {
	if r.Location == nil {
		return t.UTC()
	}
	return t.In(r.Location)
}

// ModeLabel is the operator-facing name of a payment mode.
func ModeLabel(mode models.PaymentMode) string {
	switch mode {
	case models.PaymentCash:
		return "Contanti"
	case models.PaymentCard:
		return "POS"
	case models.PaymentComplimentary:
		return "Servizio"
	default:
		return string(mode)
	}
}

// Kitchen renders the copy handed to the kitchen: quantities, names and
// notes, no prices besides the total.
func (r Renderer) Kitchen(t models.OrderTicket) []byte {
	var b bytes.Buffer

	fmt.Fprintln(&b, r.EventName)
	fmt.Fprintf(&b, "Ordine #%s\n", t.Number)
	if t.Covers > 0 {
		fmt.Fprintf(&b, "Coperti: %d\n", t.Covers)
	}

	parts := []string{r.local(t.CreatedAt).Format("15:04")}
	if t.Table != "" {
		parts = append(parts, "Tavolo "+t.Table)
	}
	total := money.Format(t.TotalCents)
	if t.PaymentMode == models.PaymentCard {
		total += " (POS)"
	}
	parts = append(parts, total)
	fmt.Fprintln(&b, strings.Join(parts, " - "))

	fmt.Fprintln(&b, rule)
	for _, line := range t.Lines {
		fmt.Fprintf(&b, "%d %s\n", line.Quantity, line.Name)
		if line.Note != "" {
			fmt.Fprintf(&b, "  (Note: %s)\n", line.Note)
		}
	}
	fmt.Fprintln(&b, rule)

	return b.Bytes()
}

// Customer renders the receipt kept by the customer.
func (r Renderer) Customer(t models.OrderTicket) []byte {
	var b bytes.Buffer

	fmt.Fprintln(&b, r.EventName)
	fmt.Fprintf(&b, "Ordine #%s\n", t.Number)
	fmt.Fprintln(&b, r.local(t.CreatedAt).Format("02/01/2006 15:04"))
	if t.Table != "" || t.Covers > 0 {
		var parts []string
		if t.Table != "" {
			parts = append(parts, "Tavolo "+t.Table)
		}
		if t.Covers > 0 {
			parts = append(parts, fmt.Sprintf("Coperti %d", t.Covers))
		}
		fmt.Fprintln(&b, strings.Join(parts, " - "))
	}

	fmt.Fprintln(&b, rule)
	for _, line := range t.Lines {
		fmt.Fprintf(&b, "%d x %s  %s\n", line.Quantity, line.Name, money.Format(line.SubtotalCents()))
	}
	fmt.Fprintln(&b, rule)

	fmt.Fprintf(&b, "Totale: %s\n", money.Format(t.TotalCents))
	fmt.Fprintf(&b, "Pagamento: %s\n", ModeLabel(t.PaymentMode))
	switch t.PaymentMode {
	case models.PaymentCash:
		fmt.Fprintf(&b, "Pagato: %s\n", money.Format(t.AmountTenderedCents))
		fmt.Fprintf(&b, "Resto: %s\n", money.Format(t.ChangeDueCents))
	case models.PaymentCard:
		fmt.Fprintf(&b, "Pagato: %s\n", money.Format(t.TotalCents))
	default:
		fmt.Fprintln(&b, "Pagato: -")
	}

	return b.Bytes()
}

// KitchenJob joins copies of the kitchen ticket into one print job.
func (r Renderer) KitchenJob(t models.OrderTicket, copies int) []byte {
	if copies < 1 {
		copies = 1
	}
	page := r.Kitchen(t)
	pages := make([][]byte, copies)
	for i := range pages {
		pages[i] = page
	}
	return bytes.Join(pages, []byte(PageBreak))
}
