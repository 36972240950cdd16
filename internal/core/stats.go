package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// statsLoadConcurrency bounds parallel memory loads during aggregation
const statsLoadConcurrency = 4

// PlaylistSummary is the display view of one playlist's shuffle memory.
type PlaylistSummary struct {
	PlaylistID  string    `json:"playlistId"`
	Played      int       `json:"played"`
	Total       int       `json:"total"`
	Percentage  int       `json:"percentage"`
	CycleNumber int       `json:"cycleNumber"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AggregateStats folds every tracked playlist.
type AggregateStats struct {
	TrackedPlaylists int               `json:"trackedPlaylists"`
	TotalPlayed      int               `json:"totalPlayed"`
	TotalTracks      int               `json:"totalTracks"`
	CompletedCycles  int               `json:"completedCycles"`
	Playlists        []PlaylistSummary `json:"playlists"`
}

// StatsAggregator is a read-only fold over the memory store.
type StatsAggregator struct {
	store  MemoryStore
	logger *zap.Logger
}

// NewStatsAggregator creates a StatsAggregator.
func NewStatsAggregator(store MemoryStore, logger *zap.Logger) *StatsAggregator {
	return &StatsAggregator{
		store:  store,
		logger: logger.Named("stats"),
	}
}

// Aggregate loads every tracked memory record and summarizes it. Playlists are
// ordered by most recent update first.
func (a *StatsAggregator) Aggregate(ctx context.Context) (*AggregateStats, error) {
	ids, err := a.store.ListTrackedPlaylistIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked playlists: %w", err)
	}

	memories := make([]*ShuffleMemory, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsLoadConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			memory, err := a.store.Load(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to load shuffle memory for %s: %w", id, err)
			}
			memories[i] = memory
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &AggregateStats{Playlists: make([]PlaylistSummary, 0, len(memories))}
	for _, memory := range memories {
		// Deleted between list and load.
		if memory == nil {
			continue
		}

		stats := projectProgress(len(memory.PlayedTrackIDs), memory.TotalTracks, memory.CycleNumber)

		result.TrackedPlaylists++
		result.TotalPlayed += stats.Played
		result.TotalTracks += stats.Total
		result.CompletedCycles += stats.CycleNumber
		result.Playlists = append(result.Playlists, PlaylistSummary{
			PlaylistID:  memory.PlaylistID,
			Played:      stats.Played,
			Total:       stats.Total,
			Percentage:  stats.Percentage,
			CycleNumber: stats.CycleNumber,
			LastUpdated: memory.LastUpdated,
		})
	}

	sort.Slice(result.Playlists, func(i, j int) bool {
		a, b := result.Playlists[i], result.Playlists[j]
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return a.PlaylistID < b.PlaylistID
	})

	a.logger.Debug("Aggregated shuffle statistics",
		zap.Int("trackedPlaylists", result.TrackedPlaylists),
		zap.Int("totalPlayed", result.TotalPlayed))

	return result, nil
}
