package identities

import (
	"context"
	"path/filepath"
	"testing"

	"jirahooks/pkg/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Driver:      "sqlite3",
		DSN:         filepath.Join(t.TempDir(), "identities.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestOpenValidatesConfig tests that incomplete configs are rejected.
func TestOpenValidatesConfig(t *testing.T) {
	if _, err := Open(Config{DSN: "x"}); err == nil {
		t.Fatalf("expected error without driver")
	}
	if _, err := Open(Config{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected error without dsn")
	}
	if _, err := Open(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

// TestUpsertAndFind tests that mappings are upserted and ordered by priority.
func TestUpsertAndFind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []storage.IdentityRecord{
		{Email: "Dev@Example.com", Username: "dev-admin", Priority: 10},
		{Email: "dev@example.com", Username: "dev", DisplayName: "Dev"},
		{Email: "other@example.com", Username: "other"},
	}
	for _, record := range records {
		if err := store.UpsertIdentity(ctx, record); err != nil {
			t.Fatalf("upsert %s: %v", record.Username, err)
		}
	}

	found, err := store.FindIdentities(ctx, " DEV@example.com ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 2 || found[0].Username != "dev" || found[1].Username != "dev-admin" {
		t.Fatalf("unexpected identities: %+v", found)
	}

	if err := store.UpsertIdentity(ctx, storage.IdentityRecord{Email: "dev@example.com", Username: "dev-admin", Priority: -1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	found, err = store.FindIdentities(ctx, "dev@example.com")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if len(found) != 2 || found[0].Username != "dev-admin" {
		t.Fatalf("expected updated priority to win, got %+v", found)
	}

	all, err := store.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 mappings, got %d", len(all))
	}
}

// TestUpsertRequiresFields tests required mapping fields.
func TestUpsertRequiresFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertIdentity(ctx, storage.IdentityRecord{Username: "dev"}); err == nil {
		t.Fatalf("expected error without email")
	}
	if err := store.UpsertIdentity(ctx, storage.IdentityRecord{Email: "dev@example.com"}); err == nil {
		t.Fatalf("expected error without username")
	}
}

// TestDeleteIdentity tests removal of a mapping.
func TestDeleteIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.UpsertIdentity(ctx, storage.IdentityRecord{Email: "dev@example.com", Username: "dev"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.DeleteIdentity(ctx, "DEV@example.com", "dev"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	found, err := store.FindIdentities(ctx, "dev@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected mapping deleted, got %+v", found)
	}
	if err := store.DeleteIdentity(ctx, "missing@example.com", "x"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
