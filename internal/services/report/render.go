package report

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"

	"sagra-pos/internal/models"
	"sagra-pos/internal/money"
)

var modeLabels = map[models.PaymentMode]string{
	models.PaymentCash:          "di cui contanti",
	models.PaymentCard:          "di cui POS",
	models.PaymentComplimentary: "di cui gratuiti",
}

// Render formats the report as the table printed at the end of the evening.
func Render(r Report) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Resoconto %s\n\n", r.BusinessDay)

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Prodotto\tSerata\tProgressivo")

	names := make([]string, 0, len(r.Progressive.Products))
	for name := range r.Progressive.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\t%d\n", name, r.Day.Products[name].Quantity, r.Progressive.Products[name].Quantity)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "SUBTOTALE SERATA\t%s\t%s\n", money.Format(r.Day.TotalCents), money.Format(r.Progressive.TotalCents))
	for _, mode := range models.PaymentModes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", modeLabels[mode], money.Format(r.Day.ByMode[mode]), money.Format(r.Progressive.ByMode[mode]))
	}
	w.Flush()

	return b.Bytes()
}
