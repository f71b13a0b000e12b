// Package billing implements the billing and negotiation workflow for
// StitchLab designs: one billing record per design, a capped counter-offer
// loop, approval/finalisation, and the breakdown feeding invoices.
package billing

import (
	"errors"
	"time"
)

// BillingStatus enumerates billing record statuses.
type BillingStatus string

const (
	StatusPending  BillingStatus = "PENDING"
	StatusApproved BillingStatus = "APPROVED"
	StatusBilled   BillingStatus = "BILLED"
)

// MaxNegotiationRounds caps client counter-offers per design.
const MaxNegotiationRounds = 5

var (
	// ErrBillingNotFound indicates no billing record exists for the reference.
	ErrBillingNotFound = errors.New("billing: record not found")
	// ErrDuplicateBilling indicates a design already has a billing record.
	ErrDuplicateBilling = errors.New("billing: record already exists for design")
	// ErrNegotiationLimit indicates the negotiation round cap was reached.
	ErrNegotiationLimit = errors.New("billing: negotiation limit reached")
)

// BillingRecord holds a design's fee breakdown, negotiation state and
// finalisation. FinalAmount is nil until an approval or override resolves
// it; there is no zero-as-unset sentinel in storage.
type BillingRecord struct {
	ID                int64         `json:"id"`
	DesignID          int64         `json:"design_id"`
	InvoiceNo         int64         `json:"invoice_no"`
	TotalShirts       int           `json:"total_shirts"`
	PrintingFee       float64       `json:"printing_fee"`
	RevisionFee       float64       `json:"revision_fee"`
	DesignerFee       float64       `json:"designer_fee"`
	StartingAmount    float64       `json:"starting_amount"`
	AddonsShirtPrice  float64       `json:"addons_shirt_price"`
	AddonsFee         float64       `json:"addons_fee"`
	FinalAmount       *float64      `json:"final_amount,omitempty"`
	Status            BillingStatus `json:"status"`
	NegotiationRounds int           `json:"negotiation_rounds"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// OriginalTotal is the asking price before negotiation: the baseline
// starting amount plus any client-approved add-ons.
func (r *BillingRecord) OriginalTotal() float64 {
	return r.StartingAmount + r.AddonsShirtPrice + r.AddonsFee
}

// ResolvedFinalAmount returns the frozen total, or 0 when unresolved.
func (r *BillingRecord) ResolvedFinalAmount() float64 {
	if r.FinalAmount == nil {
		return 0
	}
	return *r.FinalAmount
}

// NegotiationEntry is one append-only audit row of the negotiation history.
// Amount stores the discount delta, not the proposed price; a negative
// amount means the client proposed more than the asking total.
type NegotiationEntry struct {
	ID        int64     `json:"id"`
	BillingID int64     `json:"billing_id"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	AddedBy   *int64    `json:"added_by,omitempty"`
}

// Breakdown maps the stored fee components for invoice rendering. Total is
// the baseline starting amount; callers needing the negotiated price read
// FinalAmount off the record.
type Breakdown struct {
	ShirtCount  int     `json:"shirt_count"`
	PrintFee    float64 `json:"print_fee"`
	RevisionFee float64 `json:"revision_fee"`
	DesignerFee float64 `json:"designer_fee"`
	Total       float64 `json:"total"`
}

// BreakdownOf derives the invoice breakdown from a record.
func BreakdownOf(r *BillingRecord) Breakdown {
	return Breakdown{
		ShirtCount:  r.TotalShirts,
		PrintFee:    r.PrintingFee,
		RevisionFee: r.RevisionFee,
		DesignerFee: r.DesignerFee,
		Total:       r.StartingAmount,
	}
}

// CreateBillingInput carries the baseline fee inputs captured when a design
// is approved for production.
type CreateBillingInput struct {
	DesignID         int64
	TotalShirts      int
	PrintingFee      float64
	RevisionFee      float64
	DesignerFee      float64
	AddonsShirtPrice float64
	AddonsFee        float64
}

// ListRequest filters the billing dashboard feed.
type ListRequest struct {
	Status BillingStatus
	Limit  int
}
