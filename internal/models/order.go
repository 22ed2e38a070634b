package models

import (
	"fmt"
	"strings"
	"time"
)

// PaymentMode represents how an order was paid
type PaymentMode string

const (
	PaymentCash          PaymentMode = "cash"
	PaymentCard          PaymentMode = "card"
	PaymentComplimentary PaymentMode = "complimentary"
)

// DefaultPaymentMode is attributed to history records that carry no mode
const DefaultPaymentMode = PaymentCash

// PaymentModes lists the closed set of payment modes in display order
var PaymentModes = []PaymentMode{PaymentCash, PaymentCard, PaymentComplimentary}

// ParsePaymentMode accepts the canonical names and the labels used by older
// history records ("POS", "servizio")
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "contanti":
		return PaymentCash, nil
	case "card", "pos":
		return PaymentCard, nil
	case "complimentary", "servizio":
		return PaymentComplimentary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMode, s)
	}
}

// OrderNumber is the display number printed on tickets
type OrderNumber struct {
	Prefix string `json:"prefix,omitempty"`
	Value  int    `json:"value"`
}

// String renders the number as prefix plus four zero-padded digits
func (n OrderNumber) String() string {
	v := n.Value % 10000
	if v < 0 {
		v += 10000
	}
	return fmt.Sprintf("%s%04d", n.Prefix, v)
}

// Offline reports whether the number was issued without the remote counter
func (n OrderNumber) Offline() bool {
	return n.Prefix != ""
}

// TicketLine is one sold line of an order ticket
type TicketLine struct {
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	DisplayName    []string `json:"display_name,omitempty"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Quantity       int      `json:"quantity"`
	Note           string   `json:"note,omitempty"`
}

// SubtotalCents is unit price times quantity
func (l TicketLine) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// OrderTicket is the immutable snapshot of an order at payment time
type OrderTicket struct {
	ID                  string       `json:"id"`
	Number              OrderNumber  `json:"number"`
	BusinessDay         string       `json:"business_day"`
	Lines               []TicketLine `json:"lines"`
	TotalCents          int64        `json:"total_cents"`
	AmountTenderedCents int64        `json:"amount_tendered_cents"`
	PaymentMode         PaymentMode  `json:"payment_mode"`
	ChangeDueCents      int64        `json:"change_due_cents"`
	Table               string       `json:"table,omitempty"`
	Covers              int          `json:"covers,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// ItemCount is the total number of units on the ticket
func (t OrderTicket) ItemCount() int {
	count := 0
	for _, line := range t.Lines {
		count += line.Quantity
	}
	return count
}

// CheckoutRequest represents the payment details entered by the operator
type CheckoutRequest struct {
	AmountTenderedCents int64  `json:"amount_tendered_cents"`
	PaymentMode         string `json:"payment_mode"`
	Table               string `json:"table,omitempty"`
	Covers              int    `json:"covers,omitempty"`
}

// ValidationError describes a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the checkout request
func (req *CheckoutRequest) Validate() error {
	if _, err := ParsePaymentMode(req.PaymentMode); err != nil {
		return ValidationError{
			Field:   "payment_mode",
			Message: "payment mode must be one of: cash, card, complimentary",
		}
	}

	if req.AmountTenderedCents < 0 {
		return ValidationError{
			Field:   "amount_tendered_cents",
			Message: "amount tendered cannot be negative",
		}
	}

	if len(req.Table) > 10 {
		return ValidationError{
			Field:   "table",
			Message: "table must not exceed 10 characters",
		}
	}

	if req.Covers < 0 || req.Covers > 100 {
		return ValidationError{
			Field:   "covers",
			Message: "covers must be between 0 and 100",
		}
	}

	return nil
}

// HistoryLine is one product of a stored order
type HistoryLine struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

// HistoryRecord is the persisted form of a confirmed order.
// PaymentMode and TotalCents are optional because older records lack them.
type HistoryRecord struct {
	ID          string        `json:"id"`
	OrderNumber int           `json:"order_number"`
	Prefix      string        `json:"prefix,omitempty"`
	Lines       []HistoryLine `json:"lines"`
	TotalCents  *int64        `json:"total_cents,omitempty"`
	PaymentMode string        `json:"payment_mode,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// NewHistoryRecord converts a confirmed ticket into its history record
func NewHistoryRecord(ticket OrderTicket) HistoryRecord {
	lines := make([]HistoryLine, 0, len(ticket.Lines))
	for _, line := range ticket.Lines {
		price := line.UnitPriceCents
		lines = append(lines, HistoryLine{
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: &price,
		})
	}
	total := ticket.TotalCents
	return HistoryRecord{
		ID:          ticket.ID,
		OrderNumber: ticket.Number.Value,
		Prefix:      ticket.Number.Prefix,
		Lines:       lines,
		TotalCents:  &total,
		PaymentMode: string(ticket.PaymentMode),
		CreatedAt:   ticket.CreatedAt,
	}
}
