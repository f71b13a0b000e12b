package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken indicates an API token that does not resolve to a user.
	ErrInvalidToken = errors.New("invalid token")
)
