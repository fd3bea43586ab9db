package storage

import (
	"context"
	"time"
)

// IdentityRecord maps a commit email address to a Jira user.
type IdentityRecord struct {
	Email       string
	Username    string
	UserKey     string
	DisplayName string
	// Priority orders several users mapped to one email; lower wins.
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdentityStore defines persistence for email to user mappings.
type IdentityStore interface {
	UpsertIdentity(ctx context.Context, record IdentityRecord) error
	FindIdentities(ctx context.Context, email string) ([]IdentityRecord, error)
	ListIdentities(ctx context.Context) ([]IdentityRecord, error)
	DeleteIdentity(ctx context.Context, email, username string) error
	Close() error
}
