// Package credential caches and refreshes the account token a source runs
// with.
package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store.Load when nothing is cached.
	ErrNotFound = errors.New("no cached credential")
	// ErrInvalidToken means no token could be validated.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidCredentials means login with the configured email and
	// password failed.
	ErrInvalidCredentials = errors.New("login failed")
)

// Credential is the single persisted record.
type Credential struct {
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists one credential. Save overwrites the previous record.
type Store interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, c Credential) error
}

// NopStore never caches anything.
type NopStore struct{}

func (NopStore) Load(context.Context) (*Credential, error) { return nil, ErrNotFound }
func (NopStore) Save(context.Context, Credential) error    { return nil }
