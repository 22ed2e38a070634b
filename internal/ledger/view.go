package ledger

import "sagra-pos/internal/models"

// LineView is a read-only row of the order screen.
type LineView struct {
	Key            string                 `json:"key"`
	DisplayName    []string               `json:"display_name"`
	UnitPriceCents int64                  `json:"unit_price_cents"`
	Quantity       int                    `json:"quantity"`
	Note           string                 `json:"note,omitempty"`
	SubtotalCents  int64                  `json:"subtotal_cents"`
	NoteWithoutQty bool                   `json:"note_without_quantity,omitempty"`
	Portion        *models.PortionCounter `json:"portion,omitempty"`
	Scarce         bool                   `json:"scarce,omitempty"`
}

// View is a snapshot of the ledger safe to serialize or hand to other goroutines.
type View struct {
	BusinessDay string     `json:"business_day,omitempty"`
	Lines       []LineView `json:"lines"`
	TotalCents  int64      `json:"total_cents"`
	ItemCount   int        `json:"item_count"`
	Warnings    []string   `json:"warnings,omitempty"`
}

func (l *ledger) View() View {
	v := View{
		BusinessDay: l.portions.BusinessDay,
		Lines:       make([]LineView, 0, len(l.order)),
		TotalCents:  l.ComputeTotalCents(),
		Warnings:    l.Warnings(),
	}

	for _, key := range l.order {
		ln := l.lines[key]
		lv := LineView{
			Key:            key,
			DisplayName:    append([]string(nil), ln.item.DisplayName...),
			UnitPriceCents: ln.item.UnitPriceCents,
			Quantity:       ln.quantity,
			Note:           ln.note,
			SubtotalCents:  ln.item.UnitPriceCents * int64(ln.quantity),
			NoteWithoutQty: ln.quantity == 0 && ln.note != "",
		}
		if counter, ok := l.portions.Items[key]; ok && counter.IsLimited {
			c := counter
			lv.Portion = &c
			lv.Scarce = c.Scarce()
		}
		v.ItemCount += ln.quantity
		v.Lines = append(v.Lines, lv)
	}

	return v
}
