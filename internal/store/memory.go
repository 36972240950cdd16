// Package store persists shuffle memory and delivery state on a kv.Store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"smartshuffle/internal/core"
	"smartshuffle/internal/kv"
)

const memoryKeyPrefix = "shuffle_memory_"

// MemoryKey returns the substrate key of a playlist's shuffle memory.
func MemoryKey(playlistID string) string {
	return memoryKeyPrefix + playlistID
}

// ShuffleMemoryStore implements core.MemoryStore.
type ShuffleMemoryStore struct {
	kv kv.Store
}

func NewShuffleMemoryStore(store kv.Store) *ShuffleMemoryStore {
	return &ShuffleMemoryStore{kv: store}
}

// Load returns (nil, nil) when the playlist has no memory yet.
func (s *ShuffleMemoryStore) Load(ctx context.Context, playlistID string) (*core.ShuffleMemory, error) {
	raw, err := s.kv.Get(ctx, MemoryKey(playlistID))
	if kv.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load shuffle memory: %w", core.ErrStorage, err)
	}

	var memory core.ShuffleMemory
	if err := json.Unmarshal(raw, &memory); err != nil {
		return nil, fmt.Errorf("%w: failed to decode shuffle memory: %w", core.ErrStorage, err)
	}
	if memory.PlaylistID == "" {
		memory.PlaylistID = playlistID
	}

	return &memory, nil
}

func (s *ShuffleMemoryStore) Save(ctx context.Context, memory *core.ShuffleMemory) error {
	if memory == nil || memory.PlaylistID == "" {
		return fmt.Errorf("%w: shuffle memory requires a playlist ID", core.ErrValidation)
	}

	raw, err := json.Marshal(memory)
	if err != nil {
		return fmt.Errorf("%w: failed to encode shuffle memory: %w", core.ErrStorage, err)
	}

	if err := s.kv.Set(ctx, MemoryKey(memory.PlaylistID), raw); err != nil {
		return fmt.Errorf("%w: failed to save shuffle memory: %w", core.ErrStorage, err)
	}
	return nil
}

func (s *ShuffleMemoryStore) Delete(ctx context.Context, playlistID string) error {
	if err := s.kv.Delete(ctx, MemoryKey(playlistID)); err != nil {
		return fmt.Errorf("%w: failed to delete shuffle memory: %w", core.ErrStorage, err)
	}
	return nil
}

// ListTrackedPlaylistIDs returns the IDs of every playlist with a memory record.
func (s *ShuffleMemoryStore) ListTrackedPlaylistIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.ListKeys(ctx, memoryKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list shuffle memories: %w", core.ErrStorage, err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, memoryKeyPrefix))
	}
	return ids, nil
}

// ClearAll deletes every shuffle memory record.
func (s *ShuffleMemoryStore) ClearAll(ctx context.Context) error {
	ids, err := s.ListTrackedPlaylistIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
