package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/shared"
)

type memoryRepo struct {
	records   map[int64]*BillingRecord
	byDesign  map[int64]int64
	history   map[int64][]NegotiationEntry
	nextID    int64
	invoiceNo int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records:  make(map[int64]*BillingRecord),
		byDesign: make(map[int64]int64),
		history:  make(map[int64][]NegotiationEntry),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) CreateBilling(ctx context.Context, input CreateBillingInput, startingAmount float64) (*BillingRecord, error) {
	if _, exists := r.byDesign[input.DesignID]; exists {
		return nil, ErrDuplicateBilling
	}
	r.nextID++
	r.invoiceNo++
	now := time.Now()
	rec := &BillingRecord{
		ID:               r.nextID,
		DesignID:         input.DesignID,
		InvoiceNo:        r.invoiceNo,
		TotalShirts:      input.TotalShirts,
		PrintingFee:      input.PrintingFee,
		RevisionFee:      input.RevisionFee,
		DesignerFee:      input.DesignerFee,
		StartingAmount:   startingAmount,
		AddonsShirtPrice: input.AddonsShirtPrice,
		AddonsFee:        input.AddonsFee,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.records[rec.ID] = rec
	r.byDesign[rec.DesignID] = rec.ID
	return cloneRecord(rec), nil
}

func (r *memoryRepo) GetByDesign(ctx context.Context, designID int64) (*BillingRecord, error) {
	id, ok := r.byDesign[designID]
	if !ok {
		return nil, ErrBillingNotFound
	}
	return cloneRecord(r.records[id]), nil
}

func (r *memoryRepo) GetByDesignForUpdate(ctx context.Context, designID int64) (*BillingRecord, error) {
	return r.GetByDesign(ctx, designID)
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*BillingRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrBillingNotFound
	}
	return cloneRecord(rec), nil
}

func (r *memoryRepo) List(ctx context.Context, req ListRequest) ([]BillingRecord, error) {
	var out []BillingRecord
	for _, rec := range r.records {
		if req.Status != "" && rec.Status != req.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *memoryRepo) AppendNegotiation(ctx context.Context, entry *NegotiationEntry) error {
	rec, ok := r.records[entry.BillingID]
	if !ok {
		return ErrBillingNotFound
	}
	if rec.NegotiationRounds >= MaxNegotiationRounds {
		return ErrNegotiationLimit
	}
	r.nextID++
	entry.ID = r.nextID
	r.history[rec.ID] = append(r.history[rec.ID], *entry)
	rec.NegotiationRounds++
	rec.FinalAmount = nil
	rec.Status = StatusPending
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) SetFinalAmount(ctx context.Context, id int64, amount float64, status BillingStatus) error {
	rec, ok := r.records[id]
	if !ok {
		return ErrBillingNotFound
	}
	rec.FinalAmount = &amount
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) ListHistory(ctx context.Context, billingID int64) ([]NegotiationEntry, error) {
	return r.history[billingID], nil
}

func cloneRecord(rec *BillingRecord) *BillingRecord {
	out := *rec
	if rec.FinalAmount != nil {
		v := *rec.FinalAmount
		out.FinalAmount = &v
	}
	return &out
}

type memoryCatalog struct {
	designs  map[int64]*designs.Design
	requests map[int64]*designs.Request
	profiles map[int64]*designs.DesignerProfile
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		designs:  make(map[int64]*designs.Design),
		requests: make(map[int64]*designs.Request),
		profiles: make(map[int64]*designs.DesignerProfile),
	}
}

func (c *memoryCatalog) GetDesign(ctx context.Context, id int64) (*designs.Design, error) {
	d, ok := c.designs[id]
	if !ok {
		return nil, designs.ErrDesignNotFound
	}
	return d, nil
}

func (c *memoryCatalog) GetRequest(ctx context.Context, id int64) (*designs.Request, error) {
	req, ok := c.requests[id]
	if !ok {
		return nil, designs.ErrRequestNotFound
	}
	return req, nil
}

func (c *memoryCatalog) GetDesignerProfile(ctx context.Context, userID int64) (*designs.DesignerProfile, error) {
	p, ok := c.profiles[userID]
	if !ok {
		return nil, designs.ErrProfileNotFound
	}
	return p, nil
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *memoryCatalog, *auditSpy) {
	repo := newMemoryRepo()
	catalog := newMemoryCatalog()
	audit := &auditSpy{}
	svc := NewService(repo, catalog, nil, audit, nil)
	return svc, repo, catalog, audit
}

func seedDesign(catalog *memoryCatalog, designID int64) {
	catalog.designs[designID] = &designs.Design{
		ID:         designID,
		RequestID:  designID + 100,
		DesignerID: designID + 200,
		Title:      fmt.Sprintf("Design %d", designID),
	}
	catalog.requests[designID+100] = &designs.Request{
		ID:         designID + 100,
		ClientID:   1,
		ClientName: "Acme Apparel",
		Title:      "Team jerseys",
	}
	catalog.profiles[designID+200] = &designs.DesignerProfile{
		UserID:      designID + 200,
		DisplayName: "Jo Designer",
		Email:       "jo@stitchlab.test",
	}
}

func TestCreateBillingComputesStartingAmount(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	rec, err := svc.CreateBilling(ctx, CreateBillingInput{
		DesignID:    1,
		TotalShirts: 20,
		PrintingFee: 15,
		RevisionFee: 100,
		DesignerFee: 250,
	})
	require.NoError(t, err)
	require.Equal(t, 650.0, rec.StartingAmount)
	require.Equal(t, StatusPending, rec.Status)
	require.Equal(t, 0, rec.NegotiationRounds)
	require.Nil(t, rec.FinalAmount)
}

func TestCreateBillingAssignsDenseInvoiceNumbers(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()

	for designID := int64(1); designID <= 3; designID++ {
		seedDesign(catalog, designID)
		rec, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: designID, TotalShirts: 1, PrintingFee: 10})
		require.NoError(t, err)
		require.Equal(t, designID, rec.InvoiceNo)
	}
}

func TestCreateBillingRejectsUnknownDesign(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 99, TotalShirts: 1})
	require.ErrorIs(t, err, designs.ErrDesignNotFound)
}

func TestCreateBillingRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 1})
	require.NoError(t, err)
	_, err = svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 1})
	require.ErrorIs(t, err, ErrDuplicateBilling)
}

func TestSubmitNegotiationRecordsRound(t *testing.T) {
	ctx := context.Background()
	svc, repo, catalog, audit := newTestService()
	seedDesign(catalog, 1)

	// startingAmount 1000, no add-ons.
	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)

	entry, err := svc.SubmitNegotiation(ctx, 1, 800, &shared.User{ID: 42, Role: shared.RoleClient})
	require.NoError(t, err)
	require.Equal(t, 200.0, entry.Amount)
	require.NotNil(t, entry.AddedBy)
	require.Equal(t, int64(42), *entry.AddedBy)

	rec, err := repo.GetByDesign(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rec.NegotiationRounds)
	require.Equal(t, StatusPending, rec.Status)
	require.Nil(t, rec.FinalAmount)

	history, err := repo.ListHistory(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, audit.logs, 1)
}

func TestSubmitNegotiationIncludesAddonsInDelta(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{
		DesignID:         1,
		TotalShirts:      100,
		PrintingFee:      10,
		AddonsShirtPrice: 50,
		AddonsFee:        20,
	})
	require.NoError(t, err)

	entry, err := svc.SubmitNegotiation(ctx, 1, 900, nil)
	require.NoError(t, err)
	require.Equal(t, 170.0, entry.Amount) // (1000 + 50 + 20) - 900
}

func TestSubmitNegotiationStoresNegativeDelta(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)

	entry, err := svc.SubmitNegotiation(ctx, 1, 1200, nil)
	require.NoError(t, err)
	require.Equal(t, -200.0, entry.Amount)
}

func TestSubmitNegotiationAnonymousSoftFails(t *testing.T) {
	ctx := context.Background()
	svc, repo, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)

	entry, err := svc.SubmitNegotiation(ctx, 1, 950, nil)
	require.NoError(t, err)
	require.Nil(t, entry.AddedBy)

	rec, _ := repo.GetByDesign(ctx, 1)
	require.Equal(t, 1, rec.NegotiationRounds)
}

func TestSubmitNegotiationUnknownDesign(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	_, err := svc.SubmitNegotiation(ctx, 404, 500, nil)
	require.ErrorIs(t, err, ErrBillingNotFound)
}

func TestSubmitNegotiationLimit(t *testing.T) {
	ctx := context.Background()
	svc, repo, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)

	for round := 1; round <= MaxNegotiationRounds; round++ {
		_, err := svc.SubmitNegotiation(ctx, 1, float64(1000-round*10), nil)
		require.NoError(t, err)

		rec, _ := repo.GetByDesign(ctx, 1)
		history, _ := repo.ListHistory(ctx, rec.ID)
		require.Equal(t, round, rec.NegotiationRounds)
		require.Len(t, history, round)
	}

	_, err = svc.SubmitNegotiation(ctx, 1, 500, nil)
	require.ErrorIs(t, err, ErrNegotiationLimit)

	// No partial mutation on the rejected round.
	rec, _ := repo.GetByDesign(ctx, 1)
	history, _ := repo.ListHistory(ctx, rec.ID)
	require.Equal(t, MaxNegotiationRounds, rec.NegotiationRounds)
	require.Len(t, history, MaxNegotiationRounds)
}

func TestApproveBillWithoutPriorFinal(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{
		DesignID:         1,
		TotalShirts:      100,
		PrintingFee:      10,
		AddonsShirtPrice: 50,
		AddonsFee:        20,
	})
	require.NoError(t, err)

	rec, err := svc.ApproveBill(ctx, 1, &shared.User{ID: 9, Role: shared.RoleDesigner})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, rec.Status)
	require.Equal(t, 1070.0, rec.ResolvedFinalAmount()) // 1000 + 50 + 20
}

func TestApproveBillWithPriorFinal(t *testing.T) {
	ctx := context.Background()
	svc, repo, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	created, err := svc.CreateBilling(ctx, CreateBillingInput{
		DesignID:         1,
		TotalShirts:      100,
		PrintingFee:      10,
		AddonsShirtPrice: 50,
		AddonsFee:        20,
	})
	require.NoError(t, err)

	prior := 500.0
	repo.records[created.ID].FinalAmount = &prior

	rec, err := svc.ApproveBill(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, 570.0, rec.ResolvedFinalAmount()) // 500 + 50 + 20
	require.Equal(t, StatusApproved, rec.Status)
}

func TestApproveBillUnknownDesign(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	_, err := svc.ApproveBill(ctx, 404, nil)
	require.ErrorIs(t, err, ErrBillingNotFound)
}

func TestUpdateFinalAmountOverride(t *testing.T) {
	ctx := context.Background()
	svc, repo, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	created, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)

	// Mid-negotiation state should not matter to the override.
	_, err = svc.SubmitNegotiation(ctx, 1, 800, nil)
	require.NoError(t, err)

	err = svc.UpdateFinalAmount(ctx, created.ID, 750, &shared.User{ID: 3, Role: shared.RoleAdmin})
	require.NoError(t, err)

	rec, _ := repo.GetByID(ctx, created.ID)
	require.Equal(t, StatusBilled, rec.Status)
	require.Equal(t, 750.0, rec.ResolvedFinalAmount())
}

func TestUpdateFinalAmountMissingRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	err := svc.UpdateFinalAmount(ctx, 12345, 750, nil)
	require.ErrorIs(t, err, ErrBillingNotFound)
}

func TestGetBreakdownZeroedWhenMissing(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService()

	breakdown, err := svc.GetBreakdown(ctx, 404)
	require.NoError(t, err)
	require.Equal(t, Breakdown{}, breakdown)
}

func TestGetBreakdownMapsFeeComponents(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{
		DesignID:    1,
		TotalShirts: 20,
		PrintingFee: 15,
		RevisionFee: 100,
		DesignerFee: 250,
	})
	require.NoError(t, err)

	breakdown, err := svc.GetBreakdown(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, Breakdown{
		ShirtCount:  20,
		PrintFee:    15,
		RevisionFee: 100,
		DesignerFee: 250,
		Total:       650,
	}, breakdown)
}

func TestGetByDesignEnrichment(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 10, PrintingFee: 10})
	require.NoError(t, err)
	_, err = svc.SubmitNegotiation(ctx, 1, 90, nil)
	require.NoError(t, err)

	enriched, err := svc.GetByDesign(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), enriched.InvoiceNo)
	require.Equal(t, "Design 1", enriched.Design.Title)
	require.Equal(t, "Acme Apparel", enriched.Request.ClientName)
	require.Equal(t, "Jo Designer", enriched.Designer.DisplayName)
	require.Len(t, enriched.History, 1)
	require.Equal(t, 100.0, enriched.Breakdown.Total)
}

func TestGetByDesignBrokenDesignerLink(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)
	delete(catalog.profiles, int64(201))

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 1, PrintingFee: 10})
	require.NoError(t, err)

	_, err = svc.GetByDesign(ctx, 1)
	require.ErrorIs(t, err, designs.ErrProfileNotFound)
}

func TestGetByDesignMissingRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, _ := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.GetByDesign(ctx, 1)
	require.ErrorIs(t, err, ErrBillingNotFound)
}

func TestNegotiationAuditTrail(t *testing.T) {
	ctx := context.Background()
	svc, _, catalog, audit := newTestService()
	seedDesign(catalog, 1)

	_, err := svc.CreateBilling(ctx, CreateBillingInput{DesignID: 1, TotalShirts: 100, PrintingFee: 10})
	require.NoError(t, err)
	_, err = svc.SubmitNegotiation(ctx, 1, 800, &shared.User{ID: 5, Role: shared.RoleClient})
	require.NoError(t, err)

	require.NotEmpty(t, audit.logs)
	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "billing.negotiate", last.Action)
	require.Equal(t, int64(5), last.ActorID)
	require.Equal(t, 200.0, last.Meta["discount_delta"])
}
