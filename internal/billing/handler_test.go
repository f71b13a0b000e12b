package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stitchlab/stitchlab/internal/shared"
)

func newTestRouter(t *testing.T) (chi.Router, *memoryRepo, *memoryCatalog) {
	t.Helper()
	svc, repo, catalog, _ := newTestService()
	handler := NewHandler(nil, svc, nil)

	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, repo, catalog
}

func doJSON(t *testing.T, router chi.Router, method, path, body string, user *shared.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(shared.ContextWithUser(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerSubmitNegotiation(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	seedRecord(t, repo, 1, 1000)

	rr := doJSON(t, router, http.MethodPost, "/designs/1/negotiations", `{"amount": 800}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var entry NegotiationEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, 200.0, entry.Amount)
}

func TestHandlerSubmitNegotiationValidation(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	seedRecord(t, repo, 1, 1000)

	rr := doJSON(t, router, http.MethodPost, "/designs/1/negotiations", `{"amount": 0}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/designs/abc/negotiations", `{"amount": 100}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerSubmitNegotiationNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/designs/99/negotiations", `{"amount": 100}`, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerSubmitNegotiationLimit(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	rec := seedRecord(t, repo, 1, 1000)
	repo.records[rec.ID].NegotiationRounds = MaxNegotiationRounds

	rr := doJSON(t, router, http.MethodPost, "/designs/1/negotiations", `{"amount": 100}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerApproveRequiresRole(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	seedRecord(t, repo, 1, 1000)

	rr := doJSON(t, router, http.MethodPost, "/designs/1/approve", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	client := &shared.User{ID: 2, Role: shared.RoleClient}
	rr = doJSON(t, router, http.MethodPost, "/designs/1/approve", "", client)
	require.Equal(t, http.StatusForbidden, rr.Code)

	designer := &shared.User{ID: 3, Role: shared.RoleDesigner}
	rr = doJSON(t, router, http.MethodPost, "/designs/1/approve", "", designer)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1000.0, resp["final_amount"])
	require.Equal(t, string(StatusApproved), resp["status"])
}

func TestHandlerCreateRecordRequiresAdmin(t *testing.T) {
	router, _, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	body := `{"design_id": 1, "total_shirts": 20, "printing_fee": 15, "revision_fee": 100, "designer_fee": 250}`

	rr := doJSON(t, router, http.MethodPost, "/records", body, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	admin := &shared.User{ID: 1, Role: shared.RoleAdmin}
	rr = doJSON(t, router, http.MethodPost, "/records", body, admin)
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec BillingRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Equal(t, 650.0, rec.StartingAmount)
	require.Equal(t, int64(1), rec.InvoiceNo)
}

func TestHandlerUpdateFinalAmount(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	rec := seedRecord(t, repo, 1, 1000)

	admin := &shared.User{ID: 1, Role: shared.RoleAdmin}
	rr := doJSON(t, router, http.MethodPatch, "/records/1/final-amount", `{"final_amount": 750}`, admin)
	require.Equal(t, http.StatusOK, rr.Code)

	updated := repo.records[rec.ID]
	require.Equal(t, StatusBilled, updated.Status)
	require.Equal(t, 750.0, *updated.FinalAmount)
}

func TestHandlerGetBreakdownZeroedWhenMissing(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/designs/99/breakdown", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var breakdown Breakdown
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &breakdown))
	require.Equal(t, Breakdown{}, breakdown)
}

func TestHandlerGetByDesign(t *testing.T) {
	router, repo, catalog := newTestRouter(t)
	seedDesign(catalog, 1)
	seedRecord(t, repo, 1, 1000)

	rr := doJSON(t, router, http.MethodGet, "/designs/1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var enriched EnrichedBilling
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &enriched))
	require.Equal(t, "Design 1", enriched.Design.Title)
	require.Equal(t, 1000.0, enriched.Breakdown.Total)
}

func seedRecord(t *testing.T, repo *memoryRepo, designID int64, starting float64) *BillingRecord {
	t.Helper()
	rec, err := repo.CreateBilling(context.Background(), CreateBillingInput{
		DesignID:    designID,
		TotalShirts: int(starting / 10),
		PrintingFee: 10,
	}, starting)
	require.NoError(t, err)
	return rec
}
