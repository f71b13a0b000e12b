package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitchlab/stitchlab/internal/billing"
	"github.com/stitchlab/stitchlab/internal/designs"
)

func enrichedFixture(finalAmount *float64) *billing.EnrichedBilling {
	return &billing.EnrichedBilling{
		BillingRecord: billing.BillingRecord{
			ID:          1,
			DesignID:    10,
			InvoiceNo:   42,
			FinalAmount: finalAmount,
		},
		Design:   &designs.Design{ID: 10, Title: "Tour Hoodie", Description: "Front and back print"},
		Request:  &designs.Request{ClientName: "Acme Apparel", ClientEmail: "billing@acme.test"},
		Designer: &designs.DesignerProfile{DisplayName: "Jo Designer"},
		Breakdown: billing.Breakdown{
			ShirtCount:  20,
			PrintFee:    15,
			RevisionFee: 100,
			DesignerFee: 250,
			Total:       650,
		},
	}
}

func TestBuildComputesTaxAndTotal(t *testing.T) {
	data := Build(enrichedFixture(nil), time.Now())

	require.Equal(t, 650.0, data.Subtotal)
	require.Equal(t, 78.0, data.Tax) // 12% of 650
	require.Equal(t, 728.0, data.Total)
	require.False(t, data.ShowDiscount)
}

func TestBuildLineItems(t *testing.T) {
	data := Build(enrichedFixture(nil), time.Now())

	require.Len(t, data.Lines, 3)
	require.Equal(t, Line{Label: "Printing", Quantity: 20, UnitPrice: 15, Amount: 300}, data.Lines[0])
	require.Equal(t, Line{Label: "Revision Fee", Amount: 100}, data.Lines[1])
	require.Equal(t, Line{Label: "Designer Fee", Amount: 250}, data.Lines[2])
}

func TestBuildNumberZeroPadded(t *testing.T) {
	enriched := enrichedFixture(nil)
	enriched.InvoiceNo = 7

	data := Build(enriched, time.Now())
	require.Equal(t, "0007", data.Number)
	require.Equal(t, "invoice-0007.pdf", Filename(enriched.InvoiceNo))

	enriched.InvoiceNo = 12345
	require.Equal(t, "12345", Build(enriched, time.Now()).Number)
}

func TestBuildDiscountWhenFinalBelowSubtotal(t *testing.T) {
	final := 500.0
	data := Build(enrichedFixture(&final), time.Now())

	require.True(t, data.ShowDiscount)
	require.Equal(t, 150.0, data.Discount)
	require.Equal(t, 500.0, data.FinalPrice)
}

func TestBuildNoDiscountWhenFinalAtOrAboveSubtotal(t *testing.T) {
	for _, final := range []float64{650, 700} {
		f := final
		data := Build(enrichedFixture(&f), time.Now())
		require.False(t, data.ShowDiscount, "final %v", final)
		require.Zero(t, data.Discount)
	}
}

func TestBuildNoDiscountWhenFinalUnresolved(t *testing.T) {
	zero := 0.0
	data := Build(enrichedFixture(&zero), time.Now())
	require.False(t, data.ShowDiscount)
}

func TestBuildRoundsToTwoDecimals(t *testing.T) {
	enriched := enrichedFixture(nil)
	enriched.Breakdown.Total = 333.335

	data := Build(enriched, time.Now())
	require.Equal(t, 333.34, data.Subtotal)
	require.Equal(t, 40.0, data.Tax) // 12% of 333.34 = 40.0008
	require.Equal(t, 373.34, data.Total)
}

func TestBuildCarriesParties(t *testing.T) {
	data := Build(enrichedFixture(nil), time.Now())

	require.Equal(t, "Tour Hoodie", data.Title)
	require.Equal(t, "Acme Apparel", data.ClientName)
	require.Equal(t, "Jo Designer", data.DesignerName)
}
