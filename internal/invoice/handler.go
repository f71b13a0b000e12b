package invoice

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stitchlab/stitchlab/internal/billing"
	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/platform/httpx"
)

// Handler serves invoice downloads and delivery requests.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/designs/{designID}/invoice", h.download)
	r.Post("/designs/{designID}/invoice/send", h.send)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	data, rendered, err := h.service.Generate(r.Context(), designID)
	if err != nil {
		h.logger.Error("render invoice", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="invoice-`+data.Number+`.pdf"`)
	w.Header().Set("Content-Length", strconv.FormatInt(rendered.Length, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rendered.PDF)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	designID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.RequestDelivery(r.Context(), designID); err != nil {
		h.logger.Error("schedule invoice delivery", slog.Any("error", err), slog.Int64("design_id", designID))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "scheduled"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "designID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid designID")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrBillingNotFound),
		errors.Is(err, designs.ErrDesignNotFound),
		errors.Is(err, designs.ErrRequestNotFound),
		errors.Is(err, designs.ErrProfileNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
