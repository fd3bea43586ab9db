// Package directory combines user directories that map commit emails to
// tracker identities.
package directory

import (
	"context"
	"errors"
	"fmt"

	"jirahooks/pkg/storage"
	"jirahooks/pkg/tracker"
)

// Chain asks each directory in order and returns the first non-empty answer.
// A failing directory is skipped; its error is returned only when no later
// directory finds a user.
type Chain []tracker.Directory

var _ tracker.Directory = Chain(nil)

// FindUsersByEmail implements tracker.Directory.
func (c Chain) FindUsersByEmail(ctx context.Context, email string) ([]tracker.Identity, error) {
	var errs []error
	for i, dir := range c {
		if dir == nil {
			continue
		}
		users, err := dir.FindUsersByEmail(ctx, email)
		if err != nil {
			errs = append(errs, fmt.Errorf("directory %d: %w", i, err))
			continue
		}
		if len(users) > 0 {
			return users, nil
		}
	}
	return nil, errors.Join(errs...)
}

// Store adapts an identity store to tracker.Directory.
type Store struct {
	Identities storage.IdentityStore
}

// FindUsersByEmail implements tracker.Directory.
func (s Store) FindUsersByEmail(ctx context.Context, email string) ([]tracker.Identity, error) {
	if s.Identities == nil {
		return nil, nil
	}
	records, err := s.Identities.FindIdentities(ctx, email)
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Identity, 0, len(records))
	for _, record := range records {
		out = append(out, tracker.Identity{
			Name:        record.Username,
			Key:         record.UserKey,
			Email:       record.Email,
			DisplayName: record.DisplayName,
		})
	}
	return out, nil
}
