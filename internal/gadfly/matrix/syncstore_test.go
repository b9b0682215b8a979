package matrix

import (
	"context"
	"path/filepath"
	"testing"

	"maunium.net/go/mautrix/id"

	"github.com/mpavlenko/gadfly/internal/gadfly/store"
)

func testDB(t *testing.T) *DBSyncStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "gadfly.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return newDBSyncStore(s.DB())
}

func TestSyncStoreRoundTrip(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()
	user := id.UserID("@gadfly:test")

	// Missing rows read back as empty, not as errors.
	tok, err := s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch on empty store: %v", err)
	}
	if tok != "" {
		t.Errorf("expected empty token on first run, got %q", tok)
	}

	if err := s.SaveNextBatch(ctx, user, "s123_456"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	tok, err = s.LoadNextBatch(ctx, user)
	if err != nil {
		t.Fatalf("LoadNextBatch: %v", err)
	}
	if tok != "s123_456" {
		t.Errorf("expected saved token, got %q", tok)
	}

	// Saving again overwrites.
	if err := s.SaveNextBatch(ctx, user, "s789_000"); err != nil {
		t.Fatalf("SaveNextBatch overwrite: %v", err)
	}
	tok, _ = s.LoadNextBatch(ctx, user)
	if tok != "s789_000" {
		t.Errorf("expected overwritten token, got %q", tok)
	}
}

func TestSyncStoreFilterIDIsPerUser(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	if err := s.SaveFilterID(ctx, id.UserID("@a:test"), "filter-a"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	got, err := s.LoadFilterID(ctx, id.UserID("@b:test"))
	if err != nil {
		t.Fatalf("LoadFilterID: %v", err)
	}
	if got != "" {
		t.Errorf("expected no filter for other user, got %q", got)
	}
}
