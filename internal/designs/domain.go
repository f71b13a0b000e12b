// Package designs is the read side of the design catalog: designs, the
// client requests that own them, and designer profiles. The billing
// workflow reads these to enrich invoices; the design/ordering surface
// itself lives elsewhere.
package designs

import (
	"errors"
	"time"
)

var (
	// ErrDesignNotFound indicates the design does not exist.
	ErrDesignNotFound = errors.New("designs: design not found")
	// ErrRequestNotFound indicates the parent request does not exist.
	ErrRequestNotFound = errors.New("designs: request not found")
	// ErrProfileNotFound indicates the designer profile does not exist.
	ErrProfileNotFound = errors.New("designs: designer profile not found")
)

// Design is an approved apparel design produced for a client request.
type Design struct {
	ID          int64     `json:"id"`
	RequestID   int64     `json:"request_id"`
	DesignerID  int64     `json:"designer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Request is the client's original design request.
type Request struct {
	ID          int64     `json:"id"`
	ClientID    int64     `json:"client_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// DesignerProfile describes the designer assigned to a design.
type DesignerProfile struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Portfolio   string `json:"portfolio,omitempty"`
}
