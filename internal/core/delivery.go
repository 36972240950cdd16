package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartshuffle/internal/fingerprint"
)

// Committer is the slice of Engine the delivery orchestrator reconciles against.
type Committer interface {
	Commit(ctx context.Context, playlistID string, trackIDs []string) bool
	Rollback(ctx context.Context, playlistID string, trackIDs []string) bool
	GetProgress(ctx context.Context, playlistID string, totalTracks int) (*Stats, bool)
}

// StartRequest describes one delivery. FirstTrackURI has already been handed to the
// device and is only credited to memory on completion. Stats is the pre-commit
// progress of the batch, used for the completion message when memory cannot be read.
type StartRequest struct {
	PlaylistID    string
	PlaylistName  string
	TrackURIs     []string
	DeviceID      string
	FirstTrackURI string
	Stats         *Stats
}

// DeliveryOrchestrator enqueues a batch to the playback device in the background and
// commits it to shuffle memory once every track is confirmed. At most one delivery
// is active per installation; the persisted QueueDeliveryState is the slot.
type DeliveryOrchestrator struct {
	config       DeliveryConfig
	states       DeliveryStateStore
	playback     PlaybackClient
	committer    Committer
	notifier     Notifier
	gate         RequestGate
	newDelivered func(capacity int) DedupStore
	metrics      MetricsRecorder
	logger       *zap.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newJobID func() string

	startMutex sync.Mutex // serializes the check-and-create in Start and Resume
	stateMutex sync.Mutex // serializes read-modify-write of the persisted state
	runMutex   sync.Mutex
	runningJob string
	wg         sync.WaitGroup
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewDeliveryOrchestrator wires an orchestrator. gate and metrics may be nil.
func NewDeliveryOrchestrator(
	config DeliveryConfig,
	states DeliveryStateStore,
	playback PlaybackClient,
	committer Committer,
	notifier Notifier,
	gate RequestGate,
	newDelivered func(capacity int) DedupStore,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *DeliveryOrchestrator {
	if gate == nil {
		gate = openGate{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &DeliveryOrchestrator{
		config:       config,
		states:       states,
		playback:     playback,
		committer:    committer,
		notifier:     notifier,
		gate:         gate,
		newDelivered: newDelivered,
		metrics:      metrics,
		logger:       logger.Named("delivery"),
		now:          time.Now,
		sleep:        sleepContext,
		newJobID:     uuid.NewString,
		baseCtx:      baseCtx,
		cancel:       cancel,
	}
}

type openGate struct{}

func (openGate) Wait(context.Context, string) error { return nil }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start validates the request, persists the delivery record and begins delivering in
// the background. It returns ErrDeliveryActive if another delivery holds the slot.
func (o *DeliveryOrchestrator) Start(ctx context.Context, req StartRequest) error {
	if req.PlaylistID == "" {
		return ErrPlaylistRequired
	}

	o.startMutex.Lock()
	defer o.startMutex.Unlock()

	if o.IsActive(ctx) {
		o.logger.Info("Rejected delivery start, another delivery is active",
			zap.String("playlistID", req.PlaylistID))
		return ErrDeliveryActive
	}

	validation, err := o.checkReferences(req.TrackURIs, o.logger)
	if err != nil {
		o.logger.Error("Aborting delivery before start", zap.Error(err))
		o.notifier.NotifyError(ctx, err.Error())
		return err
	}
	if validation.InvalidCount > 0 {
		o.logger.Warn("Dropped invalid track references",
			zap.String("playlistID", req.PlaylistID),
			zap.Int("dropped", validation.InvalidCount),
			zap.Int("kept", len(validation.Valid)))
	}

	now := o.now()
	state := &QueueDeliveryState{
		JobID:         o.newJobID(),
		PlaylistID:    req.PlaylistID,
		PlaylistName:  req.PlaylistName,
		TrackURIs:     validation.Valid,
		FirstTrackURI: req.FirstTrackURI,
		DeviceID:      req.DeviceID,
		CurrentIndex:  0,
		IsActive:      true,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	o.stateMutex.Lock()
	err = o.states.Save(ctx, state)
	o.stateMutex.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist delivery state: %w", err)
	}

	o.logger.Info("Starting delivery",
		zap.String("jobID", state.JobID),
		zap.String("playlistID", state.PlaylistID),
		zap.String("deviceID", state.DeviceID),
		zap.Int("tracks", len(state.TrackURIs)))

	o.notifier.NotifyStart(ctx, state.PlaylistName, len(state.TrackURIs))
	o.metrics.RecordDeliveryStarted()
	o.launch(state, req.Stats)
	return nil
}

// CheckReferences returns ErrDeliveryFatal if too many of uris are malformed for Start
// to accept them. Nothing is logged or persisted.
func (o *DeliveryOrchestrator) CheckReferences(uris []string) error {
	_, err := o.checkReferences(uris, nil)
	return err
}

func (o *DeliveryOrchestrator) checkReferences(uris []string, logger *zap.Logger) (fingerprint.ValidationResult, error) {
	validation := fingerprint.ValidateReferences(uris, logger)
	if validation.InvalidCount*100 > o.config.MaxInvalidPercent*len(uris) {
		return validation, fmt.Errorf("%w: %d of %d track references are invalid",
			ErrDeliveryFatal, validation.InvalidCount, len(uris))
	}
	return validation, nil
}

// TryStart is Start reduced to whether the delivery was accepted.
func (o *DeliveryOrchestrator) TryStart(ctx context.Context, req StartRequest) bool {
	if err := o.Start(ctx, req); err != nil {
		o.logger.Debug("Delivery not started", zap.Error(err))
		return false
	}
	return true
}

// Resume restarts the loop for a persisted, still-active delivery from its checkpoint.
// It returns false if there is nothing to resume or the job is already running here.
func (o *DeliveryOrchestrator) Resume(ctx context.Context) (bool, error) {
	o.startMutex.Lock()
	defer o.startMutex.Unlock()

	if !o.IsActive(ctx) {
		return false, nil
	}

	state, err := o.states.Load(ctx)
	if err != nil {
		return false, err
	}
	if state == nil || !state.IsActive {
		return false, nil
	}

	o.runMutex.Lock()
	running := o.runningJob == state.JobID
	o.runMutex.Unlock()
	if running {
		return false, nil
	}

	o.logger.Info("Resuming delivery",
		zap.String("jobID", state.JobID),
		zap.String("playlistID", state.PlaylistID),
		zap.Int("currentIndex", state.CurrentIndex),
		zap.Int("tracks", len(state.TrackURIs)))

	o.launch(state, nil)
	return true, nil
}

// Stop marks the active delivery inactive and dismisses its notification. The loop
// notices at its next liveness check.
func (o *DeliveryOrchestrator) Stop(ctx context.Context) error {
	o.stateMutex.Lock()
	defer o.stateMutex.Unlock()

	state, err := o.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load delivery state: %w", err)
	}

	if state != nil && state.IsActive {
		state.IsActive = false
		state.UpdatedAt = o.now()
		if err := o.states.Save(ctx, state); err != nil {
			return fmt.Errorf("failed to persist stopped delivery: %w", err)
		}
		o.logger.Info("Stopped delivery",
			zap.String("jobID", state.JobID),
			zap.Int("currentIndex", state.CurrentIndex))
	}

	o.notifier.Dismiss(ctx)
	return nil
}

// IsActive reports whether a delivery holds the slot. A record older than StaleAfter
// is treated as abandoned: it is deleted without rollback and reported inactive.
func (o *DeliveryOrchestrator) IsActive(ctx context.Context) bool {
	o.stateMutex.Lock()
	defer o.stateMutex.Unlock()

	state, err := o.states.Load(ctx)
	if err != nil {
		o.logger.Warn("Failed to load delivery state", zap.Error(err))
		return false
	}
	if state == nil || !state.IsActive {
		return false
	}

	age := o.now().Sub(state.StartedAt)
	if age <= o.config.StaleAfter {
		return true
	}

	o.logger.Warn("Reclaiming stale delivery",
		zap.String("jobID", state.JobID),
		zap.String("playlistID", state.PlaylistID),
		zap.Duration("age", age),
		zap.Int("currentIndex", state.CurrentIndex),
		zap.Int("tracks", len(state.TrackURIs)))

	if err := o.states.Delete(ctx); err != nil {
		o.logger.Error("Failed to delete stale delivery", zap.Error(err))
	}
	o.notifier.Dismiss(ctx)
	o.metrics.RecordDeliveryOutcome(OutcomeStale, age)
	o.metrics.SetDeliveryActive(false)
	return false
}

// Status returns the persisted delivery record, or nil when idle.
func (o *DeliveryOrchestrator) Status(ctx context.Context) (*QueueDeliveryState, error) {
	return o.states.Load(ctx)
}

// Wait blocks until every background loop has returned.
func (o *DeliveryOrchestrator) Wait() {
	o.wg.Wait()
}

// Close interrupts background loops, leaving their records in place for Resume.
func (o *DeliveryOrchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *DeliveryOrchestrator) launch(state *QueueDeliveryState, hint *Stats) {
	o.runMutex.Lock()
	o.runningJob = state.JobID
	o.runMutex.Unlock()

	o.metrics.SetDeliveryActive(true)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.runMutex.Lock()
			if o.runningJob == state.JobID {
				o.runningJob = ""
			}
			o.runMutex.Unlock()
		}()

		o.run(o.baseCtx, state, hint)
	}()
}

func (o *DeliveryOrchestrator) run(ctx context.Context, state *QueueDeliveryState, hint *Stats) {
	started := o.now()
	total := len(state.TrackURIs)
	resumeIndex := state.CurrentIndex

	delivered := o.newDelivered(total)
	checkpointed := make([]string, 0, resumeIndex)
	for _, uri := range state.TrackURIs[:resumeIndex] {
		checkpointed = append(checkpointed, fingerprint.TrackIDFromReference(uri))
	}
	delivered.Load(checkpointed)

	logger := o.logger.With(zap.String("jobID", state.JobID), zap.String("playlistID", state.PlaylistID))

	lastProgressIndex := resumeIndex
	lastProgressAt := started
	checkEvery := max(o.config.HealthCheckEveryTracks, 1)

	for i := resumeIndex; i < total; i++ {
		if (i-resumeIndex)%checkEvery == 0 {
			if !o.stillCurrent(ctx, state.JobID) {
				o.exitCancelled(ctx, state, started, logger)
				return
			}
			if err := o.checkDeviceHealth(ctx, state.DeviceID); err != nil {
				if ctx.Err() != nil {
					logger.Info("Delivery interrupted, will resume from checkpoint", zap.Int("currentIndex", i))
					return
				}
				o.fail(ctx, state, started, err, logger)
				return
			}
		}

		uri := state.TrackURIs[i]
		trackID := fingerprint.TrackIDFromReference(uri)

		if delivered.Has(trackID) {
			logger.Debug("Skipping duplicate track", zap.String("uri", uri), zap.Int("index", i))
		} else {
			err := o.gate.Wait(ctx, state.DeviceID)
			if err == nil {
				err = o.enqueueWithRetry(ctx, uri, state.DeviceID, logger)
			}
			if ctx.Err() != nil {
				logger.Info("Delivery interrupted, will resume from checkpoint", zap.Int("currentIndex", i))
				return
			}
			if err != nil {
				o.fail(ctx, state, started, err, logger)
				return
			}

			delivered.Add(trackID)
			o.metrics.RecordTrackDelivered()
		}

		state.CurrentIndex = i + 1
		state.UpdatedAt = o.now()
		o.checkpoint(ctx, state, logger)

		now := o.now()
		last := state.CurrentIndex == total
		if last ||
			state.CurrentIndex-lastProgressIndex >= o.config.ProgressEveryTracks ||
			now.Sub(lastProgressAt) >= o.config.ProgressEvery {
			o.notifier.NotifyProgress(ctx, state.CurrentIndex, total, state.PlaylistName)
			lastProgressIndex = state.CurrentIndex
			lastProgressAt = now
		}

		if !last {
			if err := o.sleep(ctx, o.config.MinRequestDelay); err != nil {
				logger.Info("Delivery interrupted, will resume from checkpoint", zap.Int("currentIndex", state.CurrentIndex))
				return
			}
		}
	}

	if !o.stillCurrent(ctx, state.JobID) {
		o.exitCancelled(ctx, state, started, logger)
		return
	}

	o.complete(ctx, state, delivered, hint, started, logger)
}

func (o *DeliveryOrchestrator) enqueueWithRetry(ctx context.Context, uri, deviceID string, logger *zap.Logger) error {
	delay := o.config.RateLimitBaseDelay

	for attempt := 0; ; attempt++ {
		err := o.playback.EnqueueTrack(ctx, uri, deviceID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return fmt.Errorf("%w: failed to enqueue %s: %w", ErrDeliveryFatal, uri, err)
		}
		if attempt >= o.config.MaxRateLimitRetries {
			return fmt.Errorf("%w: still rate limited after %d retries: %w",
				ErrDeliveryFatal, o.config.MaxRateLimitRetries, err)
		}

		o.metrics.RecordRateLimitRetry()
		logger.Warn("Rate limited, backing off",
			zap.String("uri", uri),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		if err := o.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func (o *DeliveryOrchestrator) checkDeviceHealth(ctx context.Context, deviceID string) error {
	healthy, err := o.playback.ProbeDeviceHealth(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: device health probe failed: %w", ErrDeliveryFatal, err)
	}
	if !healthy {
		return fmt.Errorf("%w: playback device %s is unavailable", ErrDeliveryFatal, deviceID)
	}
	return nil
}

// stillCurrent reports whether the persisted record is still this job and active.
// An unreadable record is assumed current so a storage blip does not drop the delivery.
func (o *DeliveryOrchestrator) stillCurrent(ctx context.Context, jobID string) bool {
	o.stateMutex.Lock()
	defer o.stateMutex.Unlock()

	state, err := o.states.Load(ctx)
	if err != nil {
		o.logger.Warn("Failed to load delivery state during liveness check", zap.Error(err))
		return true
	}
	return state != nil && state.JobID == jobID && state.IsActive
}

// checkpoint persists progress unless the record was stopped or replaced.
func (o *DeliveryOrchestrator) checkpoint(ctx context.Context, state *QueueDeliveryState, logger *zap.Logger) {
	o.stateMutex.Lock()
	defer o.stateMutex.Unlock()

	current, err := o.states.Load(ctx)
	if err != nil {
		logger.Warn("Failed to load delivery state for checkpoint", zap.Error(err))
		return
	}
	if current == nil || current.JobID != state.JobID || !current.IsActive {
		return
	}

	if err := o.states.Save(ctx, state); err != nil {
		logger.Warn("Failed to persist delivery checkpoint",
			zap.Int("currentIndex", state.CurrentIndex),
			zap.Error(err))
	}
}

// deleteIfCurrent removes the record only if it still belongs to jobID.
func (o *DeliveryOrchestrator) deleteIfCurrent(ctx context.Context, jobID string, logger *zap.Logger) {
	o.stateMutex.Lock()
	defer o.stateMutex.Unlock()

	current, err := o.states.Load(ctx)
	if err != nil {
		logger.Warn("Failed to load delivery state for cleanup", zap.Error(err))
		return
	}
	if current == nil || current.JobID != jobID {
		return
	}

	if err := o.states.Delete(ctx); err != nil {
		logger.Error("Failed to delete delivery state", zap.Error(err))
	}
}

func (o *DeliveryOrchestrator) exitCancelled(
	ctx context.Context,
	state *QueueDeliveryState,
	started time.Time,
	logger *zap.Logger,
) {
	logger.Info("Delivery no longer active, exiting", zap.Int("currentIndex", state.CurrentIndex))
	o.deleteIfCurrent(ctx, state.JobID, logger)
	o.metrics.RecordDeliveryOutcome(OutcomeStopped, o.now().Sub(started))
	o.metrics.SetDeliveryActive(false)
}

func (o *DeliveryOrchestrator) complete(
	ctx context.Context,
	state *QueueDeliveryState,
	delivered DedupStore,
	hint *Stats,
	started time.Time,
	logger *zap.Logger,
) {
	played := make([]string, 0, delivered.Size()+1)
	if firstID := fingerprint.TrackIDFromReference(state.FirstTrackURI); firstID != "" && !delivered.Has(firstID) {
		played = append(played, firstID)
	}
	played = append(played, delivered.IDs()...)

	if !o.committer.Commit(ctx, state.PlaylistID, played) {
		logger.Error("Failed to commit delivered tracks to shuffle memory", zap.Int("tracks", len(played)))
	}

	var remaining *int
	if stats, ok := o.committer.GetProgress(ctx, state.PlaylistID, 0); ok {
		r := stats.Remaining
		remaining = &r
	} else if hint != nil {
		r := projectProgress(hint.Played+len(played), hint.Total, hint.CycleNumber).Remaining
		remaining = &r
	}

	o.notifier.NotifyComplete(ctx, len(played), state.PlaylistName, remaining)
	o.deleteIfCurrent(ctx, state.JobID, logger)

	duration := o.now().Sub(started)
	o.metrics.RecordDeliveryOutcome(OutcomeCompleted, duration)
	o.metrics.SetDeliveryActive(false)

	logger.Info("Delivery completed",
		zap.Int("delivered", len(played)),
		zap.Duration("duration", duration))
}

func (o *DeliveryOrchestrator) fail(
	ctx context.Context,
	state *QueueDeliveryState,
	started time.Time,
	cause error,
	logger *zap.Logger,
) {
	logger.Error("Delivery failed",
		zap.Int("currentIndex", state.CurrentIndex),
		zap.Int("tracks", len(state.TrackURIs)),
		zap.Error(cause))

	undelivered := make([]string, 0, len(state.TrackURIs)-state.CurrentIndex)
	for _, uri := range state.TrackURIs[state.CurrentIndex:] {
		undelivered = append(undelivered, fingerprint.TrackIDFromReference(uri))
	}
	// Commit only happens on completion, so this is a no-op against current memory.
	if !o.committer.Rollback(ctx, state.PlaylistID, undelivered) {
		logger.Warn("Rollback of undelivered tracks failed", zap.Int("tracks", len(undelivered)))
	}

	o.notifier.NotifyError(ctx, cause.Error())
	o.deleteIfCurrent(ctx, state.JobID, logger)

	o.metrics.RecordDeliveryOutcome(OutcomeFailed, o.now().Sub(started))
	o.metrics.SetDeliveryActive(false)
}
