package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchlab/stitchlab/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for billing records.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a transaction-bound copy of the repository.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

const recordColumns = `
	id, design_id, invoice_no, total_shirts, printing_fee, revision_fee,
	designer_fee, starting_amount, addons_shirt_price, addons_fee,
	final_amount, status, negotiation_rounds, created_at, updated_at`

// CreateBilling inserts a new record, drawing its invoice number from the
// invoice_counter row inside the same transaction so numbers stay dense and
// creation-ordered. A second record for the same design fails the unique
// index on design_id.
func (r *Repository) CreateBilling(ctx context.Context, input CreateBillingInput, startingAmount float64) (*BillingRecord, error) {
	var rec *BillingRecord
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		repo := &Repository{db: tx, pool: r.pool}

		var invoiceNo int64
		err := repo.db.QueryRow(ctx,
			`UPDATE invoice_counter SET last_no = last_no + 1 RETURNING last_no`,
		).Scan(&invoiceNo)
		if err != nil {
			return fmt.Errorf("billing: next invoice number: %w", err)
		}

		const query = `
			INSERT INTO billing_records (
				design_id, invoice_no, total_shirts, printing_fee, revision_fee,
				designer_fee, starting_amount, addons_shirt_price, addons_fee,
				status, negotiation_rounds, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING', 0, NOW(), NOW())
			RETURNING id, created_at, updated_at`

		created := BillingRecord{
			DesignID:         input.DesignID,
			InvoiceNo:        invoiceNo,
			TotalShirts:      input.TotalShirts,
			PrintingFee:      input.PrintingFee,
			RevisionFee:      input.RevisionFee,
			DesignerFee:      input.DesignerFee,
			StartingAmount:   startingAmount,
			AddonsShirtPrice: input.AddonsShirtPrice,
			AddonsFee:        input.AddonsFee,
			Status:           StatusPending,
		}
		err = repo.db.QueryRow(ctx, query,
			input.DesignID,
			invoiceNo,
			input.TotalShirts,
			input.PrintingFee,
			input.RevisionFee,
			input.DesignerFee,
			startingAmount,
			input.AddonsShirtPrice,
			input.AddonsFee,
		).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateBilling
			}
			return fmt.Errorf("billing: insert record: %w", err)
		}
		rec = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByDesign retrieves the record for a design.
func (r *Repository) GetByDesign(ctx context.Context, designID int64) (*BillingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM billing_records WHERE design_id = $1`
	return r.scanRecord(r.db.QueryRow(ctx, query, designID))
}

// GetByDesignForUpdate is GetByDesign with a row lock, for read-modify-write
// sections. Must run inside WithTx.
func (r *Repository) GetByDesignForUpdate(ctx context.Context, designID int64) (*BillingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM billing_records WHERE design_id = $1 FOR UPDATE`
	return r.scanRecord(r.db.QueryRow(ctx, query, designID))
}

// GetByID retrieves a record by its own identifier.
func (r *Repository) GetByID(ctx context.Context, id int64) (*BillingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM billing_records WHERE id = $1`
	return r.scanRecord(r.db.QueryRow(ctx, query, id))
}

// List returns records for the billing dashboard, newest first.
func (r *Repository) List(ctx context.Context, req ListRequest) ([]BillingRecord, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + recordColumns + ` FROM billing_records`
	args := []interface{}{}
	if req.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(req.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list records: %w", err)
	}
	defer rows.Close()

	var out []BillingRecord
	for rows.Next() {
		rec, err := scanRecordFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// AppendNegotiation records one negotiation round: it inserts the history
// entry and, in the same statement set, bumps the round counter, clears the
// final amount and resets the status to PENDING. Callers hold the row lock
// via GetByDesignForUpdate.
func (r *Repository) AppendNegotiation(ctx context.Context, entry *NegotiationEntry) error {
	var addedBy pgtype.Int8
	if entry.AddedBy != nil {
		addedBy = pgtype.Int8{Int64: *entry.AddedBy, Valid: true}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO negotiation_history (billing_id, amount, date, added_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		entry.BillingID, entry.Amount, entry.Date, addedBy,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("billing: insert negotiation entry: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE billing_records
		SET negotiation_rounds = negotiation_rounds + 1,
			final_amount = NULL,
			status = 'PENDING',
			updated_at = NOW()
		WHERE id = $1 AND negotiation_rounds < $2`,
		entry.BillingID, MaxNegotiationRounds,
	)
	if err != nil {
		return fmt.Errorf("billing: bump negotiation round: %w", err)
	}
	// The service checks the cap under the row lock; this guard is the
	// schema-level backstop so history can never outgrow the counter.
	if tag.RowsAffected() == 0 {
		return ErrNegotiationLimit
	}
	return nil
}

// SetFinalAmount freezes the final amount and moves the record to status.
func (r *Repository) SetFinalAmount(ctx context.Context, id int64, amount float64, status BillingStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE billing_records
		SET final_amount = $2, status = $3, updated_at = NOW()
		WHERE id = $1`,
		id, amount, string(status),
	)
	if err != nil {
		return fmt.Errorf("billing: set final amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBillingNotFound
	}
	return nil
}

// ListHistory returns the negotiation history for a record, oldest first.
func (r *Repository) ListHistory(ctx context.Context, billingID int64) ([]NegotiationEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, billing_id, amount, date, added_by
		FROM negotiation_history
		WHERE billing_id = $1
		ORDER BY date ASC, id ASC`,
		billingID,
	)
	if err != nil {
		return nil, fmt.Errorf("billing: list history: %w", err)
	}
	defer rows.Close()

	var out []NegotiationEntry
	for rows.Next() {
		var entry NegotiationEntry
		var addedBy pgtype.Int8
		if err := rows.Scan(&entry.ID, &entry.BillingID, &entry.Amount, &entry.Date, &addedBy); err != nil {
			return nil, err
		}
		if addedBy.Valid {
			entry.AddedBy = &addedBy.Int64
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *Repository) scanRecord(row pgx.Row) (*BillingRecord, error) {
	rec, err := scanRecordFromRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBillingNotFound
	}
	return rec, err
}

func scanRecordFromRow(row pgx.Row) (*BillingRecord, error) {
	var rec BillingRecord
	var finalAmount pgtype.Float8
	err := row.Scan(
		&rec.ID, &rec.DesignID, &rec.InvoiceNo, &rec.TotalShirts,
		&rec.PrintingFee, &rec.RevisionFee, &rec.DesignerFee,
		&rec.StartingAmount, &rec.AddonsShirtPrice, &rec.AddonsFee,
		&finalAmount, &rec.Status, &rec.NegotiationRounds,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if finalAmount.Valid {
		rec.FinalAmount = &finalAmount.Float64
	}
	return &rec, nil
}
