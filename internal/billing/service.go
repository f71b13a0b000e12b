package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/shared"
)

// RepositoryPort defines data access methods for billing records.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error
	CreateBilling(ctx context.Context, input CreateBillingInput, startingAmount float64) (*BillingRecord, error)
	GetByDesign(ctx context.Context, designID int64) (*BillingRecord, error)
	GetByDesignForUpdate(ctx context.Context, designID int64) (*BillingRecord, error)
	GetByID(ctx context.Context, id int64) (*BillingRecord, error)
	List(ctx context.Context, req ListRequest) ([]BillingRecord, error)
	AppendNegotiation(ctx context.Context, entry *NegotiationEntry) error
	SetFinalAmount(ctx context.Context, id int64, amount float64, status BillingStatus) error
	ListHistory(ctx context.Context, billingID int64) ([]NegotiationEntry, error)
}

// CatalogPort is the slice of the design catalog the billing workflow reads.
type CatalogPort interface {
	GetDesign(ctx context.Context, id int64) (*designs.Design, error)
	GetRequest(ctx context.Context, id int64) (*designs.Request, error)
	GetDesignerProfile(ctx context.Context, userID int64) (*designs.DesignerProfile, error)
}

// BreakdownCachePort caches breakdowns per design.
type BreakdownCachePort interface {
	Get(ctx context.Context, designID int64) (*Breakdown, bool)
	Set(ctx context.Context, designID int64, b Breakdown)
	Invalidate(ctx context.Context, designID int64)
}

// AuditPort records billing actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EnrichedBilling is a billing record joined with its design lineage, for
// the client-facing invoice view.
type EnrichedBilling struct {
	BillingRecord
	Design    *designs.Design          `json:"design"`
	Request   *designs.Request         `json:"request"`
	Designer  *designs.DesignerProfile `json:"designer"`
	History   []NegotiationEntry       `json:"negotiation_history"`
	Breakdown Breakdown                `json:"breakdown"`
}

// Service handles billing business logic.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	cache   BreakdownCachePort
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a Service instance. Cache and audit may be nil.
func NewService(repo RepositoryPort, catalog CatalogPort, cache BreakdownCachePort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// CreateBilling opens the billing record for a design approved for
// production. The starting amount is the authoritative asking price:
// print fee times shirt count plus the flat revision and designer fees.
func (s *Service) CreateBilling(ctx context.Context, input CreateBillingInput) (*BillingRecord, error) {
	if input.DesignID == 0 {
		return nil, fmt.Errorf("%w: design ID required", ErrBillingNotFound)
	}
	if input.TotalShirts < 0 {
		return nil, errors.New("billing: shirt count cannot be negative")
	}
	if _, err := s.catalog.GetDesign(ctx, input.DesignID); err != nil {
		return nil, err
	}

	starting := input.PrintingFee*float64(input.TotalShirts) + input.RevisionFee + input.DesignerFee
	rec, err := s.repo.CreateBilling(ctx, input, starting)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, rec.DesignID)
	return rec, nil
}

// SubmitNegotiation records one client counter-offer. The delta between the
// asking total and the proposed amount is stored as-is, negative included.
// The whole read-check-append runs under the record's row lock so the round
// cap holds under concurrent submissions. An unresolved acting user is a
// soft failure: the entry is recorded without attribution.
func (s *Service) SubmitNegotiation(ctx context.Context, designID int64, newAmount float64, actingUser *shared.User) (*NegotiationEntry, error) {
	var entry NegotiationEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		rec, err := repo.GetByDesignForUpdate(ctx, designID)
		if err != nil {
			return err
		}
		if rec.NegotiationRounds >= MaxNegotiationRounds {
			return ErrNegotiationLimit
		}

		entry = NegotiationEntry{
			BillingID: rec.ID,
			Amount:    rec.OriginalTotal() - newAmount,
			Date:      s.now(),
		}
		if actingUser != nil {
			entry.AddedBy = &actingUser.ID
		} else {
			s.logger.Info("negotiation without resolved identity", slog.Int64("design_id", designID))
		}
		return repo.AppendNegotiation(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, designID)
	s.record(ctx, actingUser, "billing.negotiate", entry.BillingID, map[string]any{
		"design_id":      designID,
		"proposed":       newAmount,
		"discount_delta": entry.Amount,
	})
	return &entry, nil
}

// ApproveBill freezes the final amount. When a prior resolved amount exists
// it is the base, otherwise the baseline starting amount; add-ons are folded
// in either way.
func (s *Service) ApproveBill(ctx context.Context, designID int64, actingUser *shared.User) (*BillingRecord, error) {
	var approved *BillingRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		rec, err := repo.GetByDesignForUpdate(ctx, designID)
		if err != nil {
			return err
		}

		base := rec.StartingAmount
		if rec.FinalAmount != nil && *rec.FinalAmount > 0 {
			base = *rec.FinalAmount
		}
		total := base + rec.AddonsShirtPrice + rec.AddonsFee

		if err := repo.SetFinalAmount(ctx, rec.ID, total, StatusApproved); err != nil {
			return err
		}
		rec.FinalAmount = &total
		rec.Status = StatusApproved
		approved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, designID)
	s.record(ctx, actingUser, "billing.approve", approved.ID, map[string]any{
		"design_id":    designID,
		"final_amount": approved.ResolvedFinalAmount(),
	})
	return approved, nil
}

// UpdateFinalAmount is the administrative override: it sets the final
// amount and moves the record to BILLED with no regard for negotiation
// state. Route-level guards restrict it to admins.
func (s *Service) UpdateFinalAmount(ctx context.Context, billingID int64, amount float64, actingUser *shared.User) error {
	rec, err := s.repo.GetByID(ctx, billingID)
	if err != nil {
		return err
	}
	if err := s.repo.SetFinalAmount(ctx, rec.ID, amount, StatusBilled); err != nil {
		return err
	}

	s.invalidate(ctx, rec.DesignID)
	s.record(ctx, actingUser, "billing.override_final", rec.ID, map[string]any{
		"design_id":    rec.DesignID,
		"final_amount": amount,
	})
	return nil
}

// GetBreakdown returns the fee breakdown for a design. A design with no
// billing record yields a zeroed breakdown, not an error: the UI renders it
// as "no billing yet".
func (s *Service) GetBreakdown(ctx context.Context, designID int64) (Breakdown, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, designID); ok {
			return *cached, nil
		}
	}

	rec, err := s.repo.GetByDesign(ctx, designID)
	if errors.Is(err, ErrBillingNotFound) {
		return Breakdown{}, nil
	}
	if err != nil {
		return Breakdown{}, err
	}

	breakdown := BreakdownOf(rec)
	if s.cache != nil {
		s.cache.Set(ctx, designID, breakdown)
	}
	return breakdown, nil
}

// GetByDesign resolves the record together with the owning design, the
// parent request, the designer profile and the negotiation history. Any
// broken link surfaces as not-found. The catalog lookups are independent
// and run concurrently.
func (s *Service) GetByDesign(ctx context.Context, designID int64) (*EnrichedBilling, error) {
	rec, err := s.repo.GetByDesign(ctx, designID)
	if err != nil {
		return nil, err
	}

	design, err := s.catalog.GetDesign(ctx, designID)
	if err != nil {
		return nil, err
	}

	enriched := EnrichedBilling{BillingRecord: *rec, Design: design, Breakdown: BreakdownOf(rec)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := s.catalog.GetRequest(gctx, design.RequestID)
		if err != nil {
			return err
		}
		enriched.Request = req
		return nil
	})
	g.Go(func() error {
		profile, err := s.catalog.GetDesignerProfile(gctx, design.DesignerID)
		if err != nil {
			return err
		}
		enriched.Designer = profile
		return nil
	})
	g.Go(func() error {
		history, err := s.repo.ListHistory(gctx, rec.ID)
		if err != nil {
			return err
		}
		enriched.History = history
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &enriched, nil
}

// List returns records for the billing dashboard.
func (s *Service) List(ctx context.Context, req ListRequest) ([]BillingRecord, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) invalidate(ctx context.Context, designID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, designID)
	}
}

func (s *Service) record(ctx context.Context, actor *shared.User, action string, billingID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		Action:   action,
		Entity:   "billing_record",
		EntityID: strconv.FormatInt(billingID, 10),
		Meta:     meta,
		At:       s.now(),
	}
	if actor != nil {
		log.ActorID = actor.ID
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
