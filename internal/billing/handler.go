package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stitchlab/stitchlab/internal/auth"
	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/platform/httpx"
	"github.com/stitchlab/stitchlab/internal/shared"
)

// Handler manages billing endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds a Handler instance. The idempotency store may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		idempotency: idempotency,
	}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Client-facing: negotiation tolerates anonymous callers (soft-fail
	// identity), reads are open to the frontend.
	r.Get("/designs/{designID}", h.getByDesign)
	r.Get("/designs/{designID}/breakdown", h.getBreakdown)
	r.Post("/designs/{designID}/negotiations", h.submitNegotiation)

	// Workflow routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleDesigner, shared.RoleAdmin))
		r.Post("/designs/{designID}/approve", h.approveBill)
	})

	// Administrative routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(shared.RoleAdmin))
		r.Get("/records", h.listRecords)
		r.Post("/records", h.createRecord)
		r.Patch("/records/{billingID}/final-amount", h.updateFinalAmount)
	})
}

type createRecordRequest struct {
	DesignID         int64   `json:"design_id" validate:"required,gt=0"`
	TotalShirts      int     `json:"total_shirts" validate:"gte=0"`
	PrintingFee      float64 `json:"printing_fee" validate:"gte=0"`
	RevisionFee      float64 `json:"revision_fee" validate:"gte=0"`
	DesignerFee      float64 `json:"designer_fee" validate:"gte=0"`
	AddonsShirtPrice float64 `json:"addons_shirt_price" validate:"gte=0"`
	AddonsFee        float64 `json:"addons_fee" validate:"gte=0"`
}

type negotiationRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type finalAmountRequest struct {
	FinalAmount float64 `json:"final_amount" validate:"gte=0"`
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rec, err := h.service.CreateBilling(r.Context(), CreateBillingInput{
		DesignID:         req.DesignID,
		TotalShirts:      req.TotalShirts,
		PrintingFee:      req.PrintingFee,
		RevisionFee:      req.RevisionFee,
		DesignerFee:      req.DesignerFee,
		AddonsShirtPrice: req.AddonsShirtPrice,
		AddonsFee:        req.AddonsFee,
	})
	if err != nil {
		h.logger.Error("create billing", slog.Any("error", err), slog.Int64("design_id", req.DesignID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) submitNegotiation(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r, "designID")
	if !ok {
		return
	}

	var req negotiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "billing.negotiation"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Submission", "this negotiation was already processed")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			h.respondError(w, err)
			return
		}
	}

	entry, err := h.service.SubmitNegotiation(r.Context(), designID, req.Amount, shared.UserFromContext(r.Context()))
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			// Free the key so the client may retry after a failure.
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.logger.Error("submit negotiation", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) approveBill(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r, "designID")
	if !ok {
		return
	}

	rec, err := h.service.ApproveBill(r.Context(), designID, shared.UserFromContext(r.Context()))
	if err != nil {
		h.logger.Error("approve bill", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"billing_id":   rec.ID,
		"final_amount": rec.ResolvedFinalAmount(),
		"status":       rec.Status,
	})
}

func (h *Handler) updateFinalAmount(w http.ResponseWriter, r *http.Request) {
	billingID, ok := h.pathID(w, r, "billingID")
	if !ok {
		return
	}

	var req finalAmountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.UpdateFinalAmount(r.Context(), billingID, req.FinalAmount, shared.UserFromContext(r.Context())); err != nil {
		h.logger.Error("update final amount", slog.Any("error", err), slog.Int64("billing_id", billingID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) getBreakdown(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r, "designID")
	if !ok {
		return
	}

	breakdown, err := h.service.GetBreakdown(r.Context(), designID)
	if err != nil {
		h.logger.Error("get breakdown", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) getByDesign(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r, "designID")
	if !ok {
		return
	}

	enriched, err := h.service.GetByDesign(r.Context(), designID)
	if err != nil {
		h.logger.Error("get billing by design", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, enriched)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.service.List(r.Context(), ListRequest{
		Status: BillingStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error("list billing records", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBillingNotFound),
		errors.Is(err, designs.ErrDesignNotFound),
		errors.Is(err, designs.ErrRequestNotFound),
		errors.Is(err, designs.ErrProfileNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNegotiationLimit):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Negotiation Limit", err.Error())
	case errors.Is(err, ErrDuplicateBilling):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
