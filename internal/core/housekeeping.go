package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DeliveryKeeper is the part of DeliveryOrchestrator the housekeeper drives.
type DeliveryKeeper interface {
	Resume(ctx context.Context) (bool, error)
}

// StatsSource produces aggregate statistics for periodic logging.
type StatsSource interface {
	Aggregate(ctx context.Context) (*AggregateStats, error)
}

// Housekeeper periodically reclaims stale deliveries, resumes interrupted ones and logs
// aggregate statistics.
type Housekeeper struct {
	schedule cron.Schedule
	spec     string
	delivery DeliveryKeeper
	stats    StatsSource
	logger   *zap.Logger

	sweepMutex sync.Mutex
}

// NewHousekeeper parses the schedule (standard cron or @every descriptors).
func NewHousekeeper(spec string, delivery DeliveryKeeper, stats StatsSource, logger *zap.Logger) (*Housekeeper, error) {
	if spec == "" {
		spec = DefaultHousekeepingSchedule
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid housekeeping schedule %q: %w", ErrValidation, spec, err)
	}

	return &Housekeeper{
		schedule: schedule,
		spec:     spec,
		delivery: delivery,
		stats:    stats,
		logger:   logger.Named("housekeeping"),
	}, nil
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (h *Housekeeper) Run(ctx context.Context) error {
	h.logger.Info("Starting housekeeping", zap.String("schedule", h.spec))

	h.Sweep(ctx)

	c := cron.New()
	c.Schedule(h.schedule, cron.FuncJob(func() { h.Sweep(ctx) }))
	c.Start()

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()

	h.logger.Info("Housekeeping stopped")
	return nil
}

// Sweep runs one housekeeping pass. Overlapping passes are skipped.
func (h *Housekeeper) Sweep(ctx context.Context) {
	if !h.sweepMutex.TryLock() {
		h.logger.Debug("Skipping overlapping housekeeping pass")
		return
	}
	defer h.sweepMutex.Unlock()

	if ctx.Err() != nil {
		return
	}

	// Resume reclaims a stale record via IsActive before looking for one to restart.
	resumed, err := h.delivery.Resume(ctx)
	switch {
	case err != nil:
		h.logger.Warn("Failed to resume delivery", zap.Error(err))
	case resumed:
		h.logger.Info("Resumed interrupted delivery")
	}

	if h.stats == nil {
		return
	}
	stats, err := h.stats.Aggregate(ctx)
	if err != nil {
		h.logger.Warn("Failed to aggregate statistics", zap.Error(err))
		return
	}
	h.logger.Info("Shuffle statistics",
		zap.Int("trackedPlaylists", stats.TrackedPlaylists),
		zap.Int("totalPlayed", stats.TotalPlayed),
		zap.Int("totalTracks", stats.TotalTracks),
		zap.Int("completedCycles", stats.CompletedCycles))
}
