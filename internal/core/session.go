package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BatchComputer selects the next shuffle batch.
type BatchComputer interface {
	ComputeNextBatch(ctx context.Context, playlistID string, liveTracks []Track) (*BatchResult, error)
}

// DeliveryStarter owns the delivery slot.
type DeliveryStarter interface {
	IsActive(ctx context.Context) bool
	CheckReferences(uris []string) error
	Start(ctx context.Context, req StartRequest) error
}

// ShuffleResult describes a started shuffle session.
type ShuffleResult struct {
	PlaylistID   string `json:"playlistId"`
	PlaylistName string `json:"playlistName"`
	DeviceID     string `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	FirstTrack   Track  `json:"firstTrack"`
	Queued       int    `json:"queued"`
	Stats        Stats  `json:"stats"`
}

// Shuffler runs one shuffle session: fetch the live playlist, pick a batch, start the
// first track on the device and hand the rest to the delivery orchestrator.
type Shuffler struct {
	config          ShuffleConfig
	defaultDeviceID string
	playback        PlaybackClient
	engine          BatchComputer
	delivery        DeliveryStarter
	logger          *zap.Logger
}

// NewShuffler creates a Shuffler.
func NewShuffler(
	config ShuffleConfig,
	defaultDeviceID string,
	playback PlaybackClient,
	engine BatchComputer,
	delivery DeliveryStarter,
	logger *zap.Logger,
) *Shuffler {
	return &Shuffler{
		config:          config,
		defaultDeviceID: defaultDeviceID,
		playback:        playback,
		engine:          engine,
		delivery:        delivery,
		logger:          logger.Named("shuffler"),
	}
}

// Shuffle starts a session for playlistID on deviceID. Empty arguments fall back to the
// configured defaults; an empty device with no default picks the first active device.
func (s *Shuffler) Shuffle(ctx context.Context, playlistID, deviceID string) (*ShuffleResult, error) {
	if playlistID == "" {
		playlistID = s.config.DefaultPlaylistID
	}
	if playlistID == "" {
		return nil, ErrPlaylistRequired
	}

	if s.delivery.IsActive(ctx) {
		return nil, ErrDeliveryActive
	}

	tracks, err := s.playback.ListPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks for %s: %w", playlistID, err)
	}

	batch, err := s.engine.ComputeNextBatch(ctx, playlistID, tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to compute batch: %w", err)
	}
	if len(batch.Selected) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistEmpty, playlistID)
	}

	first := batch.Selected[0]
	rest := make([]string, 0, len(batch.Selected)-1)
	for _, track := range batch.Selected[1:] {
		rest = append(rest, track.URI)
	}

	// Nothing may play before the batch is known to be deliverable.
	if err := s.delivery.CheckReferences(rest); err != nil {
		return nil, err
	}

	device, err := s.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if !device.Active {
		if err := s.playback.TransferPlayback(ctx, device.ID, false); err != nil {
			return nil, fmt.Errorf("failed to transfer playback to %s: %w", device.Name, err)
		}
	}

	if err := s.playback.PlayTracks(ctx, []string{first.URI}, device.ID); err != nil {
		return nil, fmt.Errorf("failed to start playback: %w", err)
	}

	name := s.playlistName(ctx, playlistID)
	stats := batch.Stats

	err = s.delivery.Start(ctx, StartRequest{
		PlaylistID:    playlistID,
		PlaylistName:  name,
		TrackURIs:     rest,
		DeviceID:      device.ID,
		FirstTrackURI: first.URI,
		Stats:         &stats,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start delivery: %w", err)
	}

	s.logger.Info("Started shuffle session",
		zap.String("playlistID", playlistID),
		zap.String("deviceID", device.ID),
		zap.Int("batchSize", len(batch.Selected)),
		zap.Int("played", stats.Played),
		zap.Int("total", stats.Total),
		zap.Int("cycleNumber", stats.CycleNumber),
		zap.Bool("cycleComplete", stats.CycleComplete))

	return &ShuffleResult{
		PlaylistID:   playlistID,
		PlaylistName: name,
		DeviceID:     device.ID,
		DeviceName:   device.Name,
		FirstTrack:   first,
		Queued:       len(rest),
		Stats:        stats,
	}, nil
}

// playlistName is best effort; the ID stands in when the catalog lookup fails.
func (s *Shuffler) playlistName(ctx context.Context, playlistID string) string {
	playlists, err := s.playback.ListPlaylists(ctx)
	if err != nil {
		s.logger.Warn("Failed to look up playlist name", zap.String("playlistID", playlistID), zap.Error(err))
		return playlistID
	}
	for _, p := range playlists {
		if p.ID == playlistID {
			return p.Name
		}
	}
	return playlistID
}

// resolveDevice picks the requested device, then the configured one, then the first
// active device, then any usable device.
func (s *Shuffler) resolveDevice(ctx context.Context, requested string) (*Device, error) {
	devices, err := s.playback.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if requested == "" {
		requested = s.defaultDeviceID
	}
	if requested != "" {
		for i := range devices {
			if devices[i].ID == requested {
				return &devices[i], nil
			}
		}
		return nil, fmt.Errorf("%w: device %s not found", ErrValidation, requested)
	}

	var fallback *Device
	for i := range devices {
		if devices[i].Restricted {
			continue
		}
		if devices[i].Active {
			return &devices[i], nil
		}
		if fallback == nil {
			fallback = &devices[i]
		}
	}
	if fallback == nil {
		return nil, ErrNoDevice
	}
	return fallback, nil
}
