package directory

import (
	"context"
	"errors"
	"testing"

	"jirahooks/pkg/storage"
	"jirahooks/pkg/tracker"
)

type fixedDirectory struct {
	users []tracker.Identity
	err   error
	calls int
}

func (f *fixedDirectory) FindUsersByEmail(context.Context, string) ([]tracker.Identity, error) {
	f.calls++
	return f.users, f.err
}

type memoryStore struct {
	records []storage.IdentityRecord
	err     error
}

func (m memoryStore) UpsertIdentity(context.Context, storage.IdentityRecord) error { return nil }
func (m memoryStore) FindIdentities(context.Context, string) ([]storage.IdentityRecord, error) {
	return m.records, m.err
}
func (m memoryStore) ListIdentities(context.Context) ([]storage.IdentityRecord, error) {
	return m.records, nil
}
func (m memoryStore) DeleteIdentity(context.Context, string, string) error { return nil }
func (m memoryStore) Close() error                                         { return nil }

// TestChainFirstNonEmptyWins tests that later directories are not consulted after a hit.
func TestChainFirstNonEmptyWins(t *testing.T) {
	empty := &fixedDirectory{}
	hit := &fixedDirectory{users: []tracker.Identity{{Name: "dev"}}}
	never := &fixedDirectory{users: []tracker.Identity{{Name: "other"}}}

	users, err := Chain{empty, hit, never}.FindUsersByEmail(context.Background(), "dev@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(users) != 1 || users[0].Name != "dev" {
		t.Fatalf("unexpected users: %+v", users)
	}
	if never.calls != 0 {
		t.Fatalf("expected later directory to be skipped")
	}
}

// TestChainSkipsFailingDirectory tests that an error does not hide a later hit.
func TestChainSkipsFailingDirectory(t *testing.T) {
	broken := &fixedDirectory{err: errors.New("db down")}
	hit := &fixedDirectory{users: []tracker.Identity{{Name: "dev"}}}
	users, err := Chain{broken, hit}.FindUsersByEmail(context.Background(), "dev@example.com")
	if err != nil || len(users) != 1 {
		t.Fatalf("expected fallback hit, got %+v err=%v", users, err)
	}

	users, err = Chain{broken, &fixedDirectory{}}.FindUsersByEmail(context.Background(), "dev@example.com")
	if err == nil || len(users) != 0 {
		t.Fatalf("expected error when nothing found, got %+v err=%v", users, err)
	}
}

// TestStoreAdapter tests conversion from identity records.
func TestStoreAdapter(t *testing.T) {
	store := Store{Identities: memoryStore{records: []storage.IdentityRecord{
		{Email: "dev@example.com", Username: "dev", UserKey: "JIRAUSER1", DisplayName: "Dev"},
	}}}
	users, err := store.FindUsersByEmail(context.Background(), "dev@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(users) != 1 || users[0].Name != "dev" || users[0].Key != "JIRAUSER1" {
		t.Fatalf("unexpected users: %+v", users)
	}

	if _, err := (Store{Identities: memoryStore{err: errors.New("boom")}}).FindUsersByEmail(context.Background(), "x"); err == nil {
		t.Fatalf("expected store error")
	}
}
