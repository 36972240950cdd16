package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any mutation (bad track reference, missing playlist ID).
	ErrValidation = errors.New("validation error")
	// ErrStorage marks a failure of the underlying persistence substrate.
	ErrStorage = errors.New("storage error")
	// ErrMemoryMissing is returned when a commit or rollback finds no memory row to attach to.
	ErrMemoryMissing = errors.New("shuffle memory missing")
	// ErrRateLimited is returned by a PlaybackClient when the target asks us to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrDeliveryFatal aborts the whole in-flight delivery.
	ErrDeliveryFatal = errors.New("delivery failed")
	// ErrDeliveryActive rejects a second delivery while one is in flight.
	ErrDeliveryActive = errors.New("a delivery is already in progress")
	// ErrNoDevice is returned when no playback device can take the session.
	ErrNoDevice = errors.New("no playback device available")

	// ErrPlaylistRequired is the ErrValidation returned when no playlist was given or configured.
	ErrPlaylistRequired = fmt.Errorf("%w: playlist ID is required", ErrValidation)
	// ErrPlaylistEmpty is the ErrValidation returned when a playlist has nothing to play.
	ErrPlaylistEmpty = fmt.Errorf("%w: playlist has no playable tracks", ErrValidation)
)
