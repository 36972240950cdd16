package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"smartshuffle/internal/fingerprint"
	"smartshuffle/internal/shuffle"
)

// Engine selects unheard tracks and maintains per-playlist shuffle memory.
// Mutations of the same playlist are serialized; different playlists proceed concurrently.
type Engine struct {
	store   MemoryStore
	locks   *keyLock
	metrics MetricsRecorder
	logger  *zap.Logger

	shuffle func([]Track) []Track
	now     func() time.Time
}

func NewEngine(store MemoryStore, metrics MetricsRecorder, logger *zap.Logger) *Engine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Engine{
		store:   store,
		locks:   newKeyLock(),
		metrics: metrics,
		logger:  logger.Named("engine"),
		shuffle: shuffle.Shuffle[Track],
		now:     time.Now,
	}
}

// ComputeNextBatch returns a random subset of the playlist's unheard tracks and the
// pre-commit progress. Nothing is marked as played; see Commit.
func (e *Engine) ComputeNextBatch(ctx context.Context, playlistID string, liveTracks []Track) (*BatchResult, error) {
	if playlistID == "" {
		return nil, ErrPlaylistRequired
	}

	unlock, err := e.locks.Lock(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := e.computeNextBatchLocked(ctx, playlistID, liveTracks, false)
	if err != nil {
		return nil, err
	}

	e.metrics.RecordBatch(len(result.Selected), result.Stats.CycleComplete)
	return result, nil
}

// computeNextBatchLocked requires the playlist lock. It recurses at most once, after a cycle rollover.
func (e *Engine) computeNextBatchLocked(
	ctx context.Context,
	playlistID string,
	liveTracks []Track,
	cycleComplete bool,
) (*BatchResult, error) {
	total := len(liveTracks)
	if total == 0 {
		return &BatchResult{Selected: []Track{}, Stats: newStats(0, 0, 0, cycleComplete)}, nil
	}

	liveIDs := make([]string, 0, total)
	for _, t := range liveTracks {
		liveIDs = append(liveIDs, t.ID)
	}
	hash := fingerprint.Compute(liveIDs)

	memory, err := e.loadOrCreate(ctx, playlistID, hash, total)
	if err != nil {
		return nil, err
	}

	if memory.PlaylistHash != hash {
		e.logger.Info("Playlist changed, clearing played set",
			zap.String("playlistID", playlistID),
			zap.String("oldHash", memory.PlaylistHash),
			zap.String("newHash", hash),
			zap.Int("cycleNumber", memory.CycleNumber))

		memory = e.freshMemory(playlistID, hash, total, memory.CycleNumber)
		if err := e.save(ctx, memory); err != nil {
			return nil, err
		}
	}

	live := make(map[string]struct{}, total)
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}

	if pruned := pruneOrphans(memory, live); pruned > 0 {
		e.logger.Info("Pruned orphaned tracks from memory",
			zap.String("playlistID", playlistID),
			zap.Int("pruned", pruned))

		memory.LastUpdated = e.now()
		if err := e.save(ctx, memory); err != nil {
			return nil, err
		}
	}

	played := make(map[string]struct{}, len(memory.PlayedTrackIDs))
	for _, id := range memory.PlayedTrackIDs {
		played[id] = struct{}{}
	}

	unplayed := make([]Track, 0, total-len(played))
	seen := make(map[string]struct{}, total)
	for _, t := range liveTracks {
		if _, ok := played[t.ID]; ok {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		unplayed = append(unplayed, t)
	}

	if len(unplayed) == 0 {
		e.logger.Info("Cycle complete, starting next cycle",
			zap.String("playlistID", playlistID),
			zap.Int("completedCycle", memory.CycleNumber),
			zap.Int("totalTracks", total))

		next := e.freshMemory(playlistID, hash, total, memory.CycleNumber+1)
		if err := e.save(ctx, next); err != nil {
			return nil, err
		}
		return e.computeNextBatchLocked(ctx, playlistID, liveTracks, true)
	}

	size := min(BatchSize(total), len(unplayed))
	selected := e.shuffle(unplayed)[:size]

	stats := newStats(len(memory.PlayedTrackIDs), total, memory.CycleNumber, cycleComplete)

	e.logger.Debug("Computed batch",
		zap.String("playlistID", playlistID),
		zap.Int("batchSize", size),
		zap.Int("unplayed", len(unplayed)),
		zap.Int("played", stats.Played),
		zap.Int("cycleNumber", stats.CycleNumber))

	return &BatchResult{Selected: selected, Stats: stats}, nil
}

// loadOrCreate returns the stored memory, or persists and returns a fresh record.
// A read failure degrades to a fresh record that is not persisted, so the stored
// one survives for the next attempt.
func (e *Engine) loadOrCreate(ctx context.Context, playlistID, hash string, total int) (*ShuffleMemory, error) {
	memory, err := e.store.Load(ctx, playlistID)
	if err != nil {
		e.logger.Warn("Failed to load shuffle memory, using a fresh record for this batch",
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return e.freshMemory(playlistID, hash, total, 0), nil
	}
	if memory != nil {
		return memory, nil
	}

	memory = e.freshMemory(playlistID, hash, total, 0)
	if err := e.save(ctx, memory); err != nil {
		return nil, err
	}
	return memory, nil
}

func (e *Engine) freshMemory(playlistID, hash string, total, cycle int) *ShuffleMemory {
	return &ShuffleMemory{
		PlaylistID:     playlistID,
		PlaylistHash:   hash,
		PlayedTrackIDs: []string{},
		CycleNumber:    cycle,
		TotalTracks:    total,
		LastUpdated:    e.now(),
	}
}

func (e *Engine) save(ctx context.Context, memory *ShuffleMemory) error {
	if err := e.store.Save(ctx, memory); err != nil {
		return fmt.Errorf("failed to persist shuffle memory for %s: %w", memory.PlaylistID, err)
	}
	return nil
}

// pruneOrphans drops played IDs absent from live and returns how many were removed.
func pruneOrphans(memory *ShuffleMemory, live map[string]struct{}) int {
	kept := memory.PlayedTrackIDs[:0]
	for _, id := range memory.PlayedTrackIDs {
		if _, ok := live[id]; ok {
			kept = append(kept, id)
		}
	}
	pruned := len(memory.PlayedTrackIDs) - len(kept)
	memory.PlayedTrackIDs = kept
	return pruned
}

// Commit marks trackIDs as played. It returns false if the playlist has no memory
// or the update could not be persisted.
func (e *Engine) Commit(ctx context.Context, playlistID string, trackIDs []string) bool {
	return e.mutatePlayed(ctx, "commit", playlistID, func(memory *ShuffleMemory) {
		played := make(map[string]struct{}, len(memory.PlayedTrackIDs)+len(trackIDs))
		for _, id := range memory.PlayedTrackIDs {
			played[id] = struct{}{}
		}
		for _, id := range trackIDs {
			if id == "" {
				continue
			}
			if _, ok := played[id]; ok {
				continue
			}
			played[id] = struct{}{}
			memory.PlayedTrackIDs = append(memory.PlayedTrackIDs, id)
		}
	})
}

// Rollback removes trackIDs from the played set. IDs that were never played are ignored.
//
// Memory is only written by Commit after a delivery completes, so the delivery
// failure path currently rolls back IDs that were never recorded. The call is kept
// so that a future partial-commit delivery stays consistent.
func (e *Engine) Rollback(ctx context.Context, playlistID string, trackIDs []string) bool {
	return e.mutatePlayed(ctx, "rollback", playlistID, func(memory *ShuffleMemory) {
		remove := make(map[string]struct{}, len(trackIDs))
		for _, id := range trackIDs {
			remove[id] = struct{}{}
		}
		kept := memory.PlayedTrackIDs[:0]
		for _, id := range memory.PlayedTrackIDs {
			if _, ok := remove[id]; !ok {
				kept = append(kept, id)
			}
		}
		memory.PlayedTrackIDs = kept
	})
}

func (e *Engine) mutatePlayed(ctx context.Context, op, playlistID string, mutate func(*ShuffleMemory)) bool {
	unlock, err := e.locks.Lock(ctx, playlistID)
	if err != nil {
		e.logger.Error("Failed to acquire playlist lock",
			zap.String("op", op),
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return false
	}
	defer unlock()

	memory, err := e.store.Load(ctx, playlistID)
	if err == nil && memory == nil {
		err = ErrMemoryMissing
	}
	if err != nil {
		e.logger.Error("Shuffle memory unavailable, played set not updated",
			zap.String("op", op),
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return false
	}

	before := len(memory.PlayedTrackIDs)
	mutate(memory)
	memory.LastUpdated = e.now()

	if err := e.save(ctx, memory); err != nil {
		e.logger.Error("Failed to persist played set",
			zap.String("op", op),
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return false
	}

	e.logger.Debug("Updated played set",
		zap.String("op", op),
		zap.String("playlistID", playlistID),
		zap.Int("before", before),
		zap.Int("after", len(memory.PlayedTrackIDs)))
	return true
}

// GetProgress projects the stored memory without mutating it. totalTracks <= 0
// falls back to the last reconciled count. A finished cycle is reported as the
// start of the next one.
func (e *Engine) GetProgress(ctx context.Context, playlistID string, totalTracks int) (*Stats, bool) {
	memory, err := e.store.Load(ctx, playlistID)
	if err != nil {
		e.logger.Warn("Failed to load shuffle memory",
			zap.String("playlistID", playlistID),
			zap.Error(err))
		return nil, false
	}
	if memory == nil {
		return nil, false
	}

	total := totalTracks
	if total <= 0 {
		total = memory.TotalTracks
	}

	stats := projectProgress(len(memory.PlayedTrackIDs), total, memory.CycleNumber)
	return &stats, true
}

// Reset forgets a playlist's shuffle memory.
func (e *Engine) Reset(ctx context.Context, playlistID string) error {
	if playlistID == "" {
		return ErrPlaylistRequired
	}

	unlock, err := e.locks.Lock(ctx, playlistID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.store.Delete(ctx, playlistID); err != nil {
		return fmt.Errorf("failed to reset %s: %w", playlistID, err)
	}

	e.logger.Info("Reset shuffle memory", zap.String("playlistID", playlistID))
	return nil
}

// ResetAll forgets every playlist's shuffle memory.
func (e *Engine) ResetAll(ctx context.Context) error {
	if err := e.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to reset all shuffle memory: %w", err)
	}

	e.logger.Info("Reset all shuffle memory")
	return nil
}
