package draft

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"fieldbook/api/internal/checklist"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create draft cache: %v", err)
	}
	return cache, s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cache, s := setupTestCache(t)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	draft := checklist.ResponseMap{
		"it_crop::f1": {ItemID: "it_crop", FieldID: "f1", Answer: "Soja", Status: checklist.StatusPending},
		"it_notes":    {ItemID: "it_notes", Answer: "offline note", Status: checklist.StatusMissing},
	}

	if err := cache.Save(ctx, "CHK-001", draft); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := cache.Load(ctx, "CHK-001")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if got := loaded["it_crop::f1"]; got.Answer != "Soja" || got.Status != checklist.StatusPending {
		t.Errorf("unexpected entry after round trip: %+v", got)
	}
}

func TestLoadMissingDraftYieldsEmptyMap(t *testing.T) {
	cache, s := setupTestCache(t)
	defer cache.Close()
	defer s.Close()

	loaded, err := cache.Load(context.Background(), "CHK-missing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty map for missing draft, got %v", loaded)
	}
}

func TestLoadCorruptBlobIsNotFatal(t *testing.T) {
	cache, s := setupTestCache(t)
	defer cache.Close()
	defer s.Close()

	s.Set("draft:CHK-001", "{not json")

	loaded, err := cache.Load(context.Background(), "CHK-001")
	if err != nil {
		t.Fatalf("expected corrupt blob to be discarded, got error: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty map for corrupt blob, got %v", loaded)
	}
}

func TestClearRemovesDraft(t *testing.T) {
	cache, s := setupTestCache(t)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	draft := checklist.ResponseMap{"it_notes": {ItemID: "it_notes", Answer: "x"}}
	if err := cache.Save(ctx, "CHK-001", draft); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := cache.Clear(ctx, "CHK-001"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	loaded, err := cache.Load(ctx, "CHK-001")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected no entries after clear, got %v", loaded)
	}
}

func TestDraftCarriesTTL(t *testing.T) {
	cache, s := setupTestCache(t)
	defer cache.Close()
	defer s.Close()

	if err := cache.Save(context.Background(), "CHK-001", checklist.ResponseMap{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := s.TTL("draft:CHK-001"); ttl != draftTTL {
		t.Errorf("expected ttl %v, got %v", draftTTL, ttl)
	}
}
