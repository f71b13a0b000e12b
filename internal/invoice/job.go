package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchlab/stitchlab/internal/billing"
	jobmetrics "github.com/stitchlab/stitchlab/internal/jobs"
	"github.com/stitchlab/stitchlab/jobs"
)

// Mailer enqueues the notification email once the PDF is stored.
type Mailer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Billing    BillingPort
	Renderer   *Renderer
	Mailer     Mailer
	StorageDir string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Job renders and delivers invoices from the queue.
type Job struct {
	billing    BillingPort
	renderer   *Renderer
	mailer     Mailer
	storageDir string
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
	now        func() time.Time
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	return &Job{
		billing:    cfg.Billing,
		renderer:   cfg.Renderer,
		mailer:     cfg.Mailer,
		storageDir: cfg.StorageDir,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	return j.metrics.Track("invoice_deliver").End(j.handle(ctx, task))
}

func (j *Job) handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.billing == nil || j.renderer == nil {
		return fmt.Errorf("invoice job not configured")
	}
	var payload jobs.InvoiceDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.DesignID == 0 {
		return asynq.SkipRetry
	}

	enriched, err := j.billing.GetByDesign(ctx, payload.DesignID)
	if err != nil {
		if errors.Is(err, billing.ErrBillingNotFound) {
			return asynq.SkipRetry
		}
		return err
	}

	data := Build(enriched, j.now())
	rendered, err := j.renderer.Render(ctx, data)
	if err != nil {
		return err
	}
	path, err := j.save(enriched.InvoiceNo, rendered.PDF)
	if err != nil {
		return err
	}

	if j.mailer != nil && enriched.Request != nil && enriched.Request.ClientEmail != "" {
		_, err := j.mailer.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
			To:      enriched.Request.ClientEmail,
			Subject: fmt.Sprintf("Your StitchLab invoice #%s", data.Number),
			Body:    fmt.Sprintf("Invoice #%s for %q is ready. Total due: %.2f.", data.Number, data.Title, dueAmount(data)),
		})
		if err != nil {
			return err
		}
	}

	if j.logger != nil {
		j.logger.Info("invoice delivered",
			slog.Int64("design_id", payload.DesignID),
			slog.String("file", path),
			slog.Int64("bytes", rendered.Length),
		)
	}
	return nil
}

func dueAmount(data InvoiceData) float64 {
	if data.ShowDiscount {
		return data.FinalPrice
	}
	return data.Total
}

func (j *Job) save(invoiceNo int64, pdf []byte) (string, error) {
	dir := j.storageDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "invoices")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(invoiceNo))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
