package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchlab/stitchlab/internal/billing"
	"github.com/stitchlab/stitchlab/jobs"
)

// BillingPort is the slice of the billing service the invoice flow reads.
type BillingPort interface {
	GetByDesign(ctx context.Context, designID int64) (*billing.EnrichedBilling, error)
}

// Service renders invoices on demand and schedules async delivery.
type Service struct {
	billing  BillingPort
	renderer *Renderer
	queue    Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// Enqueuer abstracts the jobs client for delivery scheduling. May be nil
// when the deployment runs without a worker.
type Enqueuer interface {
	EnqueueInvoiceDeliver(ctx context.Context, payload jobs.InvoiceDeliverPayload) (*asynq.TaskInfo, error)
}

// NewService builds a Service instance.
func NewService(billingSvc BillingPort, renderer *Renderer, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{billing: billingSvc, renderer: renderer, queue: queue, logger: logger, now: time.Now}
}

// Generate renders the invoice PDF for a design synchronously.
func (s *Service) Generate(ctx context.Context, designID int64) (InvoiceData, RenderResult, error) {
	enriched, err := s.billing.GetByDesign(ctx, designID)
	if err != nil {
		return InvoiceData{}, RenderResult{}, err
	}
	data := Build(enriched, s.now())
	result, err := s.renderer.Render(ctx, data)
	if err != nil {
		return InvoiceData{}, RenderResult{}, fmt.Errorf("invoice: render: %w", err)
	}
	return data, result, nil
}

// RequestDelivery verifies the record exists and schedules async rendering
// and email delivery.
func (s *Service) RequestDelivery(ctx context.Context, designID int64) error {
	if s.queue == nil {
		return fmt.Errorf("invoice: delivery queue not configured")
	}
	if _, err := s.billing.GetByDesign(ctx, designID); err != nil {
		return err
	}
	if _, err := s.queue.EnqueueInvoiceDeliver(ctx, jobs.InvoiceDeliverPayload{DesignID: designID}); err != nil {
		return fmt.Errorf("invoice: enqueue delivery: %w", err)
	}
	s.logger.Info("invoice delivery scheduled", slog.Int64("design_id", designID))
	return nil
}
