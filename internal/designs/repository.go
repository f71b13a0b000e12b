package designs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed lookups for the design catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetDesign retrieves a design by ID.
func (r *Repository) GetDesign(ctx context.Context, id int64) (*Design, error) {
	const query = `
		SELECT id, request_id, designer_id, title, description, preview_url, created_at
		FROM designs
		WHERE id = $1`

	var d Design
	var preview pgtype.Text
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.RequestID, &d.DesignerID, &d.Title, &d.Description, &preview, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("designs: get design: %w", err)
	}
	if preview.Valid {
		d.PreviewURL = preview.String
	}
	return &d, nil
}

// GetRequest retrieves a design request with the client's display name.
func (r *Repository) GetRequest(ctx context.Context, id int64) (*Request, error) {
	const query = `
		SELECT dr.id, dr.client_id, u.name, u.email, dr.title, dr.description, dr.created_at
		FROM design_requests dr
		JOIN users u ON u.id = dr.client_id
		WHERE dr.id = $1`

	var req Request
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.ClientID, &req.ClientName, &req.ClientEmail, &req.Title, &req.Description, &req.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("designs: get request: %w", err)
	}
	return &req, nil
}

// GetDesignerProfile retrieves the profile for a designer user ID.
func (r *Repository) GetDesignerProfile(ctx context.Context, userID int64) (*DesignerProfile, error) {
	const query = `
		SELECT p.user_id, p.display_name, u.email, p.portfolio
		FROM designer_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1`

	var profile DesignerProfile
	var portfolio pgtype.Text
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.DisplayName, &profile.Email, &portfolio,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("designs: get designer profile: %w", err)
	}
	if portfolio.Valid {
		profile.Portfolio = portfolio.String
	}
	return &profile, nil
}
