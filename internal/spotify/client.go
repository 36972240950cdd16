// Package spotify implements core.PlaybackClient on the Spotify Web API.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"smartshuffle/internal/core"
	"smartshuffle/internal/fingerprint"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0600
	// PageLimit is the page size for playlist and track listings
	PageLimit = 100
	// UnknownArtist is the default value when artist name is not available
	UnknownArtist = "Unknown"
)

// ErrNotAuthenticated is returned until a token has been loaded or obtained.
var ErrNotAuthenticated = errors.New("spotify client not authenticated")

type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	auth   *spotifyauth.Authenticator

	mutex  sync.RWMutex
	client *spotify.Client
	state  string
}

type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Client{
		config: config,
		logger: logger.Named("spotify"),
		auth:   auth,
		state:  uuid.NewString(),
	}
}

// newClientWithAPI wires an already authenticated API client.
func newClientWithAPI(config *core.SpotifyConfig, api *spotify.Client, logger *zap.Logger) *Client {
	c := NewClient(config, logger)
	c.client = api
	return c
}

// Authenticate loads the saved token and verifies it. It returns ErrNotAuthenticated
// when no usable token exists; complete the flow via CompleteAuth or AuthenticateInteractive.
func (c *Client) Authenticate(ctx context.Context) error {
	token, err := c.loadToken()
	if err != nil {
		c.logger.Info("No saved token found", zap.String("tokenPath", c.config.TokenPath))
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	return c.useToken(ctx, token)
}

// AuthURL is the consent page the user must visit.
func (c *Client) AuthURL() string {
	return c.auth.AuthURL(c.state)
}

// CompleteAuth finishes the OAuth flow from the redirect request.
func (c *Client) CompleteAuth(ctx context.Context, r *http.Request) error {
	token, err := c.auth.Token(ctx, c.state, r)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	return c.useToken(ctx, token)
}

// AuthenticateInteractive asks for the authorization code on stdin.
func (c *Client) AuthenticateInteractive(ctx context.Context) error {
	if err := c.Authenticate(ctx); err == nil {
		return nil
	}

	fmt.Printf("Please visit the following URL to authorize the application:\n%s\n", c.AuthURL())
	fmt.Print("Enter the authorization code: ")

	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	return c.useToken(ctx, token)
}

// Authenticated reports whether API calls can be made.
func (c *Client) Authenticated() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.client != nil
}

func (c *Client) useToken(ctx context.Context, token *oauth2.Token) error {
	client := spotify.New(c.auth.Client(ctx, token))

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%w: saved token rejected: %w", ErrNotAuthenticated, err)
	}

	c.mutex.Lock()
	c.client = client
	c.mutex.Unlock()

	c.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return nil
}

func (c *Client) api() (*spotify.Client, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.client == nil {
		return nil, ErrNotAuthenticated
	}
	return c.client, nil
}

// ListPlaylists returns the current user's playlists.
func (c *Client) ListPlaylists(ctx context.Context) ([]core.Playlist, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	var playlists []core.Playlist
	offset := 0

	for {
		page, err := client.CurrentUsersPlaylists(ctx, spotify.Limit(PageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, mapError("list playlists", err)
		}

		for i := range page.Playlists {
			p := &page.Playlists[i]
			playlists = append(playlists, core.Playlist{
				ID:         string(p.ID),
				Name:       p.Name,
				Owner:      p.Owner.DisplayName,
				TrackCount: int(p.Tracks.Total), //nolint:gosec // Spotify playlist counts are reasonable for int conversion
			})
		}

		offset += len(page.Playlists)
		if len(page.Playlists) == 0 || offset >= int(page.Total) {
			break
		}
	}

	return playlists, nil
}

// ListPlaylistTracks returns every track of a playlist in order. Episodes and local
// files are skipped.
func (c *Client) ListPlaylistTracks(ctx context.Context, playlistID string) ([]core.Track, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	spotifyPlaylistID := spotify.ID(playlistID)
	var tracks []core.Track
	offset := 0

	for {
		items, err := client.GetPlaylistItems(ctx, spotifyPlaylistID,
			spotify.Limit(PageLimit), spotify.Offset(offset))
		if err != nil {
			return nil, mapError("get playlist items", err)
		}

		for i := range items.Items {
			// Only process tracks (not episodes or null items)
			track := items.Items[i].Track.Track
			if track == nil || track.ID == "" {
				continue
			}
			tracks = append(tracks, convertTrack(track))
		}

		offset += len(items.Items)
		if len(items.Items) == 0 || offset >= int(items.Total) {
			break
		}
	}

	c.logger.Debug("Retrieved playlist tracks",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(tracks)))

	return tracks, nil
}

// ListDevices returns the user's playback devices.
func (c *Client) ListDevices(ctx context.Context) ([]core.Device, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	devices, err := client.PlayerDevices(ctx)
	if err != nil {
		return nil, mapError("get player devices", err)
	}

	result := make([]core.Device, 0, len(devices))
	for i := range devices {
		result = append(result, convertDevice(&devices[i]))
	}
	return result, nil
}

// PlayTracks replaces playback on the device with uris.
func (c *Client) PlayTracks(ctx context.Context, uris []string, deviceID string) error {
	client, err := c.api()
	if err != nil {
		return err
	}

	opts := &spotify.PlayOptions{URIs: make([]spotify.URI, len(uris))}
	for i, uri := range uris {
		opts.URIs[i] = spotify.URI(uri)
	}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts.DeviceID = &id
	}

	if err := client.PlayOpt(ctx, opts); err != nil {
		return mapError("start playback", err)
	}

	c.logger.Info("Started playback",
		zap.String("deviceID", deviceID),
		zap.Int("tracks", len(uris)))
	return nil
}

// TransferPlayback makes deviceID the active device.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, startPlaying bool) error {
	client, err := c.api()
	if err != nil {
		return err
	}

	if err := client.TransferPlayback(ctx, spotify.ID(deviceID), startPlaying); err != nil {
		return mapError("transfer playback", err)
	}

	c.logger.Info("Transferred playback", zap.String("deviceID", deviceID))
	return nil
}

// EnqueueTrack appends uri to the device's queue. A 429 response wraps core.ErrRateLimited.
func (c *Client) EnqueueTrack(ctx context.Context, uri, deviceID string) error {
	client, err := c.api()
	if err != nil {
		return err
	}

	trackID := fingerprint.TrackIDFromReference(uri)
	if trackID == "" {
		return fmt.Errorf("%w: malformed track reference %q", core.ErrValidation, uri)
	}

	var opts *spotify.PlayOptions
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opts = &spotify.PlayOptions{DeviceID: &id}
	}

	if err := client.QueueSongOpt(ctx, spotify.ID(trackID), opts); err != nil {
		return mapError("add track to queue", err)
	}

	c.logger.Debug("Track added to queue", zap.String("uri", uri))
	return nil
}

// ProbeDeviceHealth reports whether deviceID is still listed and controllable. With no
// device ID any active device counts.
func (c *Client) ProbeDeviceHealth(ctx context.Context, deviceID string) (bool, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return false, err
	}

	for _, device := range devices {
		if deviceID == "" && device.Active {
			return true, nil
		}
		if deviceID != "" && device.ID == deviceID {
			if device.Restricted {
				c.logger.Warn("Playback device is restricted", zap.String("deviceID", deviceID))
				return false, nil
			}
			return true, nil
		}
	}

	c.logger.Warn("Playback device not found",
		zap.String("deviceID", deviceID),
		zap.Int("totalDevices", len(devices)))
	return false, nil
}

func convertTrack(track *spotify.FullTrack) core.Track {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}
	artist := strings.Join(artists, ", ")
	if artist == "" {
		artist = UnknownArtist
	}

	uri := string(track.URI)
	if uri == "" {
		uri = fingerprint.ReferenceFromTrackID(string(track.ID))
	}

	return core.Track{
		ID:     string(track.ID),
		URI:    uri,
		Title:  track.Name,
		Artist: artist,
	}
}

func convertDevice(device *spotify.PlayerDevice) core.Device {
	return core.Device{
		ID:         device.ID.String(),
		Name:       device.Name,
		Type:       device.Type,
		Active:     device.Active,
		Restricted: device.Restricted,
		VolumePct:  int(device.Volume),
	}
}

// mapError wraps a Web API error, marking 429 responses with core.ErrRateLimited.
func mapError(op string, err error) error {
	if statusOf(err) == http.StatusTooManyRequests {
		return fmt.Errorf("%w: failed to %s: %w", core.ErrRateLimited, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func statusOf(err error) int {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var pointer *spotify.Error
	if errors.As(err, &pointer) && pointer != nil {
		return pointer.Status
	}
	// Empty error bodies are reported as plain text.
	if strings.Contains(err.Error(), fmt.Sprintf("HTTP %d", http.StatusTooManyRequests)) {
		return http.StatusTooManyRequests
	}
	return 0
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	file, err := os.Open(c.config.TokenPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}
	if tokenData.Token == nil {
		return nil, errors.New("token file has no token")
	}

	return tokenData.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.config.TokenPath, data, FilePermission)
}
