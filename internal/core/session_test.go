package core

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type recordingStarter struct {
	active   bool
	checkErr error
	err      error
	requests []StartRequest
}

func (r *recordingStarter) IsActive(context.Context) bool { return r.active }

func (r *recordingStarter) CheckReferences([]string) error { return r.checkErr }

func (r *recordingStarter) Start(_ context.Context, req StartRequest) error {
	if r.err != nil {
		return r.err
	}
	r.requests = append(r.requests, req)
	return nil
}

func newShufflerFixture(devices []Device) (*Shuffler, *fakePlaybackClient, *recordingStarter) {
	playback := newFakePlaybackClient()
	playback.devices = devices
	playback.playlists = []Playlist{{ID: "p", Name: "Road Trip"}}
	playback.tracks["p"] = makeTracks(5)

	starter := &recordingStarter{}
	shuffler := NewShuffler(ShuffleConfig{}, "", playback, newTestEngine(newFakeMemoryStore()), starter, zap.NewNop())
	return shuffler, playback, starter
}

func TestShuffler_StartsSession(t *testing.T) {
	shuffler, playback, starter := newShufflerFixture([]Device{
		{ID: "idle", Name: "Kitchen"},
		{ID: "live", Name: "Living Room", Active: true},
	})

	result, err := shuffler.Shuffle(context.Background(), "p", "")
	if err != nil {
		t.Fatal(err)
	}

	if result.DeviceID != "live" {
		t.Errorf("got device %s, expected the active one", result.DeviceID)
	}
	if len(playback.transferred) != 0 {
		t.Errorf("got transfers %v, expected none for an active device", playback.transferred)
	}
	if len(playback.played) != 1 || len(playback.played[0]) != 1 || playback.played[0][0] != result.FirstTrack.URI {
		t.Errorf("got played %v, expected only the first track", playback.played)
	}

	if len(starter.requests) != 1 {
		t.Fatalf("got %d delivery starts, expected 1", len(starter.requests))
	}
	req := starter.requests[0]
	if req.FirstTrackURI != result.FirstTrack.URI {
		t.Errorf("got first track %s, expected %s", req.FirstTrackURI, result.FirstTrack.URI)
	}
	if len(req.TrackURIs) != 4 || result.Queued != 4 {
		t.Errorf("got %d queued, expected 4", len(req.TrackURIs))
	}
	for _, uri := range req.TrackURIs {
		if uri == req.FirstTrackURI {
			t.Error("First track must not be delivered again")
		}
	}
	if req.PlaylistName != "Road Trip" || result.PlaylistName != "Road Trip" {
		t.Errorf("got name %q, expected Road Trip", req.PlaylistName)
	}
	if req.Stats == nil || req.Stats.Total != 5 {
		t.Errorf("got stats %+v, expected total 5", req.Stats)
	}
}

func TestShuffler_TransfersToInactiveDevice(t *testing.T) {
	shuffler, playback, _ := newShufflerFixture([]Device{
		{ID: "restricted", Restricted: true},
		{ID: "idle", Name: "Kitchen"},
	})

	result, err := shuffler.Shuffle(context.Background(), "p", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.DeviceID != "idle" {
		t.Errorf("got device %s, expected first unrestricted", result.DeviceID)
	}
	if len(playback.transferred) != 1 || playback.transferred[0] != "idle" {
		t.Errorf("got transfers %v, expected [idle]", playback.transferred)
	}
}

func TestShuffler_RequestedDevice(t *testing.T) {
	shuffler, _, _ := newShufflerFixture([]Device{
		{ID: "a", Active: true},
		{ID: "b"},
	})

	result, err := shuffler.Shuffle(context.Background(), "p", "b")
	if err != nil {
		t.Fatal(err)
	}
	if result.DeviceID != "b" {
		t.Errorf("got device %s, expected b", result.DeviceID)
	}

	if _, err := shuffler.Shuffle(context.Background(), "p", "missing"); !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, expected ErrValidation for unknown device", err)
	}
}

func TestShuffler_Rejections(t *testing.T) {
	ctx := context.Background()

	shuffler, _, starter := newShufflerFixture(nil)
	if _, err := shuffler.Shuffle(ctx, "", ""); !errors.Is(err, ErrPlaylistRequired) {
		t.Errorf("got %v, expected ErrPlaylistRequired without playlist", err)
	}
	if _, err := shuffler.Shuffle(ctx, "p", ""); !errors.Is(err, ErrNoDevice) {
		t.Errorf("got %v, expected ErrNoDevice", err)
	}

	starter.active = true
	if _, err := shuffler.Shuffle(ctx, "p", ""); !errors.Is(err, ErrDeliveryActive) {
		t.Errorf("got %v, expected ErrDeliveryActive", err)
	}
}

func TestShuffler_UndeliverableBatchPlaysNothing(t *testing.T) {
	shuffler, playback, starter := newShufflerFixture([]Device{{ID: "d", Active: true}})
	starter.checkErr = ErrDeliveryFatal

	if _, err := shuffler.Shuffle(context.Background(), "p", ""); !errors.Is(err, ErrDeliveryFatal) {
		t.Errorf("got %v, expected ErrDeliveryFatal", err)
	}
	if len(playback.played) != 0 || len(playback.transferred) != 0 {
		t.Errorf("got played %v and transfers %v, expected no playback side effects", playback.played, playback.transferred)
	}
	if len(starter.requests) != 0 {
		t.Errorf("got %d delivery starts, expected none", len(starter.requests))
	}
}

func TestShuffler_EmptyPlaylist(t *testing.T) {
	shuffler, playback, _ := newShufflerFixture([]Device{{ID: "d", Active: true}})
	playback.tracks["empty"] = nil

	_, err := shuffler.Shuffle(context.Background(), "empty", "")
	if !errors.Is(err, ErrPlaylistEmpty) || !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, expected ErrPlaylistEmpty", err)
	}
	if len(playback.played) != 0 {
		t.Error("Nothing should play for an empty playlist")
	}
}

func TestShuffler_DefaultPlaylist(t *testing.T) {
	playback := newFakePlaybackClient()
	playback.devices = []Device{{ID: "d", Active: true}}
	playback.tracks["fallback"] = makeTracks(2)

	shuffler := NewShuffler(ShuffleConfig{DefaultPlaylistID: "fallback"}, "", playback,
		newTestEngine(newFakeMemoryStore()), &recordingStarter{}, zap.NewNop())

	result, err := shuffler.Shuffle(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.PlaylistID != "fallback" {
		t.Errorf("got %s, expected fallback", result.PlaylistID)
	}
	if result.PlaylistName != "fallback" {
		t.Errorf("got name %q, expected ID when the catalog has no entry", result.PlaylistName)
	}
}
