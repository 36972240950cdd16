package core

import (
	"context"
	"time"
)

// Track is a playlist entry as returned by the catalog.
type Track struct {
	ID     string
	URI    string
	Title  string
	Artist string
}

// Playlist is a catalog playlist summary.
type Playlist struct {
	ID         string
	Name       string
	Owner      string
	TrackCount int
}

// Device is a playback endpoint.
type Device struct {
	ID         string
	Name       string
	Type       string
	Active     bool
	Restricted bool
	VolumePct  int
}

// ShuffleMemory is the per-playlist record of what has been heard during the current cycle.
type ShuffleMemory struct {
	PlaylistID     string    `json:"playlistId"`
	PlaylistHash   string    `json:"playlistHash"`
	PlayedTrackIDs []string  `json:"playedTrackIds"`
	CycleNumber    int       `json:"cycleNumber"`
	TotalTracks    int       `json:"totalTracks"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Stats is the progress projection returned alongside a batch.
type Stats struct {
	Played        int  `json:"played"`
	Remaining     int  `json:"remaining"`
	Total         int  `json:"total"`
	Percentage    int  `json:"percentage"`
	CycleNumber   int  `json:"cycleNumber"`
	CycleComplete bool `json:"cycleComplete"`
}

// BatchResult is the output of Engine.ComputeNextBatch.
type BatchResult struct {
	Selected []Track
	Stats    Stats
}

// QueueDeliveryState is the single global delivery job record.
type QueueDeliveryState struct {
	JobID         string    `json:"jobId"`
	PlaylistID    string    `json:"playlistId"`
	PlaylistName  string    `json:"playlistName"`
	TrackURIs     []string  `json:"trackUris"`
	FirstTrackURI string    `json:"firstTrackUri"`
	DeviceID      string    `json:"deviceId"`
	CurrentIndex  int       `json:"currentIndex"`
	IsActive      bool      `json:"isActive"`
	StartedAt     time.Time `json:"startedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Done reports whether every queued track has been delivered.
func (s *QueueDeliveryState) Done() bool {
	return s.CurrentIndex >= len(s.TrackURIs)
}

// PlaybackClient is the catalog/playback capability the core depends on.
type PlaybackClient interface {
	ListPlaylists(ctx context.Context) ([]Playlist, error)
	ListPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)
	ListDevices(ctx context.Context) ([]Device, error)
	PlayTracks(ctx context.Context, uris []string, deviceID string) error
	TransferPlayback(ctx context.Context, deviceID string, startPlaying bool) error
	// EnqueueTrack must wrap ErrRateLimited when the target signals a rate limit.
	EnqueueTrack(ctx context.Context, uri, deviceID string) error
	ProbeDeviceHealth(ctx context.Context, deviceID string) (bool, error)
}

// Notifier surfaces delivery progress to the user. Implementations are fire-and-forget
// and must swallow (and log) their own failures.
type Notifier interface {
	NotifyStart(ctx context.Context, playlistName string, totalCount int)
	NotifyProgress(ctx context.Context, current, total int, playlistName string)
	NotifyComplete(ctx context.Context, totalDelivered int, playlistName string, remainingUnheard *int)
	NotifyError(ctx context.Context, message string)
	Dismiss(ctx context.Context)
}

// MemoryStore persists ShuffleMemory records. Load returns (nil, nil) when no memory exists.
type MemoryStore interface {
	Load(ctx context.Context, playlistID string) (*ShuffleMemory, error)
	Save(ctx context.Context, memory *ShuffleMemory) error
	Delete(ctx context.Context, playlistID string) error
	ListTrackedPlaylistIDs(ctx context.Context) ([]string, error)
	ClearAll(ctx context.Context) error
}

// DeliveryStateStore persists the single QueueDeliveryState. Load returns (nil, nil) when idle.
type DeliveryStateStore interface {
	Load(ctx context.Context) (*QueueDeliveryState, error)
	Save(ctx context.Context, state *QueueDeliveryState) error
	Delete(ctx context.Context) error
}

// DedupStore is the set of track IDs delivered so far. Add is idempotent.
type DedupStore interface {
	Has(trackID string) bool
	Add(trackID string)
	// Load replaces the contents, e.g. with the IDs before a resume checkpoint.
	Load(trackIDs []string)
	Size() int
	// IDs returns the members in insertion order.
	IDs() []string
}

// RequestGate paces outbound requests per key.
type RequestGate interface {
	Wait(ctx context.Context, key string) error
}

// MetricsRecorder receives engine and delivery events.
type MetricsRecorder interface {
	RecordBatch(size int, cycleComplete bool)
	RecordDeliveryStarted()
	RecordDeliveryOutcome(outcome string, duration time.Duration)
	RecordTrackDelivered()
	RecordRateLimitRetry()
	SetDeliveryActive(active bool)
}

// Delivery outcomes reported to MetricsRecorder.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeStopped   = "stopped"
	OutcomeStale     = "stale"
)

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) RecordBatch(int, bool) {}
func (NopMetrics) RecordDeliveryStarted() {}
func (NopMetrics) RecordDeliveryOutcome(string, time.Duration) {}
func (NopMetrics) RecordTrackDelivered() {}
func (NopMetrics) RecordRateLimitRetry() {}
func (NopMetrics) SetDeliveryActive(bool) {}
