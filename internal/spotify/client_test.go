package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"smartshuffle/internal/core"
)

// fakeAPI serves the handful of Web API endpoints the client uses.
type fakeAPI struct {
	mutex      sync.Mutex
	tracks     int
	queueCode  int
	queued     []string
	playBodies []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	switch {
	case r.URL.Path == "/me/player/devices":
		writeJSON(w, map[string]any{"devices": []map[string]any{
			{"id": "dev1", "is_active": true, "is_restricted": false, "name": "Desk", "type": "Computer", "volume_percent": 40},
			{"id": "dev2", "is_active": false, "is_restricted": true, "name": "TV", "type": "TV", "volume_percent": 0},
		}})

	case strings.HasPrefix(r.URL.Path, "/playlists/") &&
		(strings.HasSuffix(r.URL.Path, "/tracks") || strings.HasSuffix(r.URL.Path, "/items")):
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		items := []map[string]any{}
		for i := offset; i < offset+limit && i < f.tracks; i++ {
			id := fmt.Sprintf("%022d", i)
			items = append(items, map[string]any{"track": map[string]any{
				"type":    "track",
				"id":      id,
				"uri":     "spotify:track:" + id,
				"name":    fmt.Sprintf("Song %d", i),
				"artists": []map[string]any{{"name": "Band"}},
			}})
		}
		writeJSON(w, map[string]any{"items": items, "total": f.tracks, "limit": limit, "offset": offset})

	case r.URL.Path == "/me/playlists":
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"id": "p1", "name": "Road Trip", "owner": map[string]any{"display_name": "me"}, "tracks": map[string]any{"total": 12}},
			},
			"total": 1,
		})

	case r.URL.Path == "/me/player/queue":
		if f.queueCode != 0 {
			w.WriteHeader(f.queueCode)
			writeJSON(w, map[string]any{"error": map[string]any{"status": f.queueCode, "message": "slow down"}})
			return
		}
		f.queued = append(f.queued, r.URL.Query().Get("uri"))
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/me/player/play":
		body, _ := io.ReadAll(r.Body)
		f.playBodies = append(f.playBodies, string(body))
		w.WriteHeader(http.StatusNoContent)

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	sp := spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/"))
	return newClientWithAPI(&core.SpotifyConfig{TokenPath: filepath.Join(t.TempDir(), "token.json")}, sp, zap.NewNop())
}

func TestClient_NotAuthenticated(t *testing.T) {
	c := NewClient(&core.SpotifyConfig{}, zap.NewNop())
	ctx := context.Background()

	if c.Authenticated() {
		t.Error("New client should not be authenticated")
	}
	if _, err := c.ListDevices(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("got %v, expected ErrNotAuthenticated", err)
	}
	if err := c.EnqueueTrack(ctx, "spotify:track:x", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("got %v, expected ErrNotAuthenticated", err)
	}
}

func TestClient_AuthenticateWithoutToken(t *testing.T) {
	c := NewClient(&core.SpotifyConfig{TokenPath: filepath.Join(t.TempDir(), "missing.json")}, zap.NewNop())

	if err := c.Authenticate(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("got %v, expected ErrNotAuthenticated", err)
	}
	if !strings.Contains(c.AuthURL(), "state=") {
		t.Errorf("got %q, expected an auth URL carrying state", c.AuthURL())
	}
}

func TestClient_ListDevices(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})

	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, expected 2", len(devices))
	}
	expected := core.Device{ID: "dev1", Name: "Desk", Type: "Computer", Active: true, VolumePct: 40}
	if devices[0] != expected {
		t.Errorf("got %+v, expected %+v", devices[0], expected)
	}
	if !devices[1].Restricted {
		t.Error("Second device should be restricted")
	}
}

func TestClient_ProbeDeviceHealth(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	ctx := context.Background()

	tests := []struct {
		deviceID string
		expected bool
	}{
		{"dev1", true},
		{"dev2", false},
		{"gone", false},
		{"", true},
	}

	for _, tt := range tests {
		healthy, err := c.ProbeDeviceHealth(ctx, tt.deviceID)
		if err != nil {
			t.Fatal(err)
		}
		if healthy != tt.expected {
			t.Errorf("ProbeDeviceHealth(%q) = %v, expected %v", tt.deviceID, healthy, tt.expected)
		}
	}
}

func TestClient_ListPlaylistTracksPaginates(t *testing.T) {
	c := newTestClient(t, &fakeAPI{tracks: 230})

	tracks, err := c.ListPlaylistTracks(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 230 {
		t.Fatalf("got %d tracks, expected 230", len(tracks))
	}
	last := tracks[229]
	if last.ID != fmt.Sprintf("%022d", 229) || last.URI != "spotify:track:"+last.ID || last.Artist != "Band" {
		t.Errorf("got %+v, expected converted track 229", last)
	}
}

func TestClient_ListPlaylists(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})

	playlists, err := c.ListPlaylists(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	expected := core.Playlist{ID: "p1", Name: "Road Trip", Owner: "me", TrackCount: 12}
	if len(playlists) != 1 || playlists[0] != expected {
		t.Errorf("got %+v, expected [%+v]", playlists, expected)
	}
}

func TestClient_EnqueueTrack(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	uri := "spotify:track:" + fmt.Sprintf("%022d", 7)

	if err := c.EnqueueTrack(context.Background(), uri, "dev1"); err != nil {
		t.Fatal(err)
	}
	if len(api.queued) != 1 || api.queued[0] != uri {
		t.Errorf("got queued %v, expected [%s]", api.queued, uri)
	}
}

func TestClient_EnqueueTrackRateLimited(t *testing.T) {
	c := newTestClient(t, &fakeAPI{queueCode: http.StatusTooManyRequests})

	err := c.EnqueueTrack(context.Background(), "spotify:track:"+fmt.Sprintf("%022d", 8), "dev1")
	if !errors.Is(err, core.ErrRateLimited) {
		t.Errorf("got %v, expected ErrRateLimited", err)
	}
}

func TestClient_EnqueueTrackOtherError(t *testing.T) {
	c := newTestClient(t, &fakeAPI{queueCode: http.StatusNotFound})

	err := c.EnqueueTrack(context.Background(), "spotify:track:"+fmt.Sprintf("%022d", 8), "dev1")
	if err == nil || errors.Is(err, core.ErrRateLimited) {
		t.Errorf("got %v, expected a non rate limit error", err)
	}
}

func TestClient_EnqueueTrackMalformedReference(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	err := c.EnqueueTrack(context.Background(), "spotify:track:abc", "dev1")
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("got %v, expected ErrValidation", err)
	}
	if len(api.queued) != 0 {
		t.Errorf("got queued %v, expected nothing", api.queued)
	}
}

func TestClient_PlayTracks(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.PlayTracks(context.Background(), []string{"spotify:track:abc"}, "dev1"); err != nil {
		t.Fatal(err)
	}
	if len(api.playBodies) != 1 || !strings.Contains(api.playBodies[0], "spotify:track:abc") {
		t.Errorf("got bodies %v, expected the track URI", api.playBodies)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
	}{
		{"value error", spotify.Error{Status: http.StatusTooManyRequests, Message: "slow"}, true},
		{"pointer error", &spotify.Error{Status: http.StatusTooManyRequests}, true},
		{"wrapped", fmt.Errorf("outer: %w", spotify.Error{Status: http.StatusTooManyRequests}), true},
		{"empty body", errors.New("spotify: HTTP 429: Too Many Requests (body empty)"), true},
		{"not found", spotify.Error{Status: http.StatusNotFound}, false},
		{"plain", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(mapError("enqueue", tt.err), core.ErrRateLimited)
			if got != tt.rateLimited {
				t.Errorf("got rate limited %v, expected %v", got, tt.rateLimited)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	c := NewClient(&core.SpotifyConfig{TokenPath: filepath.Join(t.TempDir(), "token.json")}, zap.NewNop())

	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := c.saveToken(token); err != nil {
		t.Fatal(err)
	}

	loaded, err := c.loadToken()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" || !loaded.Expiry.Equal(token.Expiry) {
		t.Errorf("got %+v, expected %+v", loaded, token)
	}
}
