package invoice

import (
	"fmt"
	"math"
	"time"

	"github.com/stitchlab/stitchlab/internal/billing"
)

// TaxRate is the flat tax applied to the invoice subtotal.
const TaxRate = 0.12

// Line is one itemized row on the invoice. Quantity 0 marks a flat fee.
type Line struct {
	Label     string  `json:"label"`
	Quantity  int     `json:"quantity,omitempty"`
	UnitPrice float64 `json:"unit_price,omitempty"`
	Amount    float64 `json:"amount"`
}

// InvoiceData is the fully resolved input of the renderer. Building it is a
// pure transform over the enriched billing record; no store access.
type InvoiceData struct {
	Number       string    `json:"number"`
	BilledAt     time.Time `json:"billed_at"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ClientName   string    `json:"client_name"`
	DesignerName string    `json:"designer_name"`
	Lines        []Line    `json:"lines"`
	Subtotal     float64   `json:"subtotal"`
	Tax          float64   `json:"tax"`
	Total        float64   `json:"total"`
	ShowDiscount bool      `json:"show_discount"`
	Discount     float64   `json:"discount,omitempty"`
	FinalPrice   float64   `json:"final_price,omitempty"`
}

// Build assembles InvoiceData from an enriched billing record. The subtotal
// is the baseline breakdown total; a discount section appears only when a
// resolved final amount undercuts it.
func Build(enriched *billing.EnrichedBilling, issuedAt time.Time) InvoiceData {
	b := enriched.Breakdown
	data := InvoiceData{
		Number:   FormatNumber(enriched.InvoiceNo),
		BilledAt: issuedAt,
		Title:    enriched.Design.Title,
		Lines: []Line{
			{Label: "Printing", Quantity: b.ShirtCount, UnitPrice: b.PrintFee, Amount: b.PrintFee * float64(b.ShirtCount)},
			{Label: "Revision Fee", Amount: b.RevisionFee},
			{Label: "Designer Fee", Amount: b.DesignerFee},
		},
		Subtotal: round2(b.Total),
	}
	data.Description = enriched.Design.Description
	if enriched.Request != nil {
		data.ClientName = enriched.Request.ClientName
	}
	if enriched.Designer != nil {
		data.DesignerName = enriched.Designer.DisplayName
	}

	data.Tax = round2(data.Subtotal * TaxRate)
	data.Total = round2(data.Subtotal + data.Tax)

	final := enriched.ResolvedFinalAmount()
	if final > 0 && final < data.Subtotal {
		data.ShowDiscount = true
		data.Discount = round2(data.Subtotal - final)
		data.FinalPrice = round2(final)
	}
	return data
}

// FormatNumber zero-pads an invoice number to four digits.
func FormatNumber(no int64) string {
	return fmt.Sprintf("%04d", no)
}

// Filename names the downloadable artefact for a record.
func Filename(no int64) string {
	return fmt.Sprintf("invoice-%s.pdf", FormatNumber(no))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
