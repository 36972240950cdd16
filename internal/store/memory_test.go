package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartshuffle/internal/core"
	"smartshuffle/internal/kv"
)

type brokenKV struct {
	kv.Store
	err error
}

func (b *brokenKV) Get(context.Context, string) ([]byte, error) { return nil, b.err }
func (b *brokenKV) Set(context.Context, string, []byte) error { return b.err }
func (b *brokenKV) Delete(context.Context, string) error { return b.err }
func (b *brokenKV) ListKeys(context.Context, string) ([]string, error) { return nil, b.err }

func TestShuffleMemoryStore_LoadMissing(t *testing.T) {
	s := NewShuffleMemoryStore(kv.NewMemoryStore())

	memory, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memory != nil {
		t.Errorf("got %+v, expected nil for absent memory", memory)
	}
}

func TestShuffleMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	s := NewShuffleMemoryStore(backing)

	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &core.ShuffleMemory{
		PlaylistID:     "p1",
		PlaylistHash:   "3_abc",
		PlayedTrackIDs: []string{"a", "b"},
		CycleNumber:    2,
		TotalTracks:    3,
		LastUpdated:    updated,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := backing.Get(ctx, "shuffle_memory_p1"); err != nil {
		t.Errorf("Memory should be stored under shuffle_memory_p1: %v", err)
	}

	out, err := s.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out.PlaylistHash != "3_abc" || out.CycleNumber != 2 || out.TotalTracks != 3 {
		t.Errorf("got %+v, expected fields of %+v", out, in)
	}
	if len(out.PlayedTrackIDs) != 2 || out.PlayedTrackIDs[1] != "b" {
		t.Errorf("got played %v, expected [a b]", out.PlayedTrackIDs)
	}
	if !out.LastUpdated.Equal(updated) {
		t.Errorf("got LastUpdated %v, expected %v", out.LastUpdated, updated)
	}
}

func TestShuffleMemoryStore_SaveRequiresPlaylistID(t *testing.T) {
	s := NewShuffleMemoryStore(kv.NewMemoryStore())
	err := s.Save(context.Background(), &core.ShuffleMemory{})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("got %v, expected ErrValidation", err)
	}
}

func TestShuffleMemoryStore_ListAndClear(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	s := NewShuffleMemoryStore(backing)

	for _, id := range []string{"b", "a"} {
		if err := s.Save(ctx, &core.ShuffleMemory{PlaylistID: id}); err != nil {
			t.Fatal(err)
		}
	}
	_ = backing.Set(ctx, DeliveryStateKey, []byte(`{}`))

	ids, err := s.ListTrackedPlaylistIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("got %v, expected [a b]", ids)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if m, _ := s.Load(ctx, "a"); m != nil {
		t.Error("Deleted memory should not load")
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	ids, _ = s.ListTrackedPlaylistIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("got %v after ClearAll, expected none", ids)
	}
	if _, err := backing.Get(ctx, DeliveryStateKey); err != nil {
		t.Error("ClearAll must not touch the delivery state")
	}
}

func TestShuffleMemoryStore_WrapsStorageErrors(t *testing.T) {
	ctx := context.Background()
	s := NewShuffleMemoryStore(&brokenKV{err: errors.New("io")})

	if _, err := s.Load(ctx, "p"); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Load: got %v, expected ErrStorage", err)
	}
	if err := s.Save(ctx, &core.ShuffleMemory{PlaylistID: "p"}); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Save: got %v, expected ErrStorage", err)
	}
	if err := s.Delete(ctx, "p"); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Delete: got %v, expected ErrStorage", err)
	}
	if err := s.ClearAll(ctx); !errors.Is(err, core.ErrStorage) {
		t.Errorf("ClearAll: got %v, expected ErrStorage", err)
	}
}

func TestShuffleMemoryStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryStore()
	_ = backing.Set(ctx, MemoryKey("p"), []byte("{not json"))

	_, err := NewShuffleMemoryStore(backing).Load(ctx, "p")
	if !errors.Is(err, core.ErrStorage) {
		t.Errorf("got %v, expected ErrStorage", err)
	}
}

func TestDeliveryStateStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewDeliveryStateStore(kv.NewMemoryStore())

	state, err := s.Load(ctx)
	if err != nil || state != nil {
		t.Fatalf("got (%v, %v), expected (nil, nil)", state, err)
	}

	in := &core.QueueDeliveryState{
		JobID:         "job-1",
		PlaylistID:    "p1",
		PlaylistName:  "Road Trip",
		TrackURIs:     []string{"spotify:track:a", "spotify:track:b"},
		FirstTrackURI: "spotify:track:first",
		DeviceID:      "dev",
		CurrentIndex:  1,
		IsActive:      true,
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.JobID != "job-1" || out.CurrentIndex != 1 || !out.IsActive || len(out.TrackURIs) != 2 {
		t.Errorf("got %+v, expected round trip of %+v", out, in)
	}
	if out.Done() {
		t.Error("Delivery with one of two tracks done should not report Done")
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if out, _ := s.Load(ctx); out != nil {
		t.Error("Deleted state should not load")
	}
}

func TestDeliveryStateStore_WrapsStorageErrors(t *testing.T) {
	ctx := context.Background()
	s := NewDeliveryStateStore(&brokenKV{err: errors.New("io")})

	if _, err := s.Load(ctx); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Load: got %v, expected ErrStorage", err)
	}
	if err := s.Save(ctx, &core.QueueDeliveryState{}); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Save: got %v, expected ErrStorage", err)
	}
	if err := s.Delete(ctx); !errors.Is(err, core.ErrStorage) {
		t.Errorf("Delete: got %v, expected ErrStorage", err)
	}
}
