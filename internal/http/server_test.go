package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"smartshuffle/internal/core"
)

type fakeShuffler struct {
	err        error
	playlistID string
	deviceID   string
}

func (f *fakeShuffler) Shuffle(_ context.Context, playlistID, deviceID string) (*core.ShuffleResult, error) {
	f.playlistID, f.deviceID = playlistID, deviceID
	if f.err != nil {
		return nil, f.err
	}
	return &core.ShuffleResult{PlaylistID: playlistID, DeviceID: deviceID, Queued: 9}, nil
}

type fakeMemory struct {
	stats     map[string]core.Stats
	lastTotal int
	resets    []string
	resetAll  int
}

func (f *fakeMemory) GetProgress(_ context.Context, playlistID string, totalTracks int) (*core.Stats, bool) {
	f.lastTotal = totalTracks
	stats, ok := f.stats[playlistID]
	if !ok {
		return nil, false
	}
	return &stats, true
}

func (f *fakeMemory) Reset(_ context.Context, playlistID string) error {
	if playlistID == "" {
		return core.ErrValidation
	}
	f.resets = append(f.resets, playlistID)
	return nil
}

func (f *fakeMemory) ResetAll(context.Context) error {
	f.resetAll++
	return nil
}

type fakeDelivery struct {
	state   *core.QueueDeliveryState
	stopped int
}

func (f *fakeDelivery) Status(context.Context) (*core.QueueDeliveryState, error) {
	return f.state, nil
}

func (f *fakeDelivery) Stop(context.Context) error {
	f.stopped++
	return nil
}

func (f *fakeDelivery) IsActive(context.Context) bool {
	return f.state != nil && f.state.IsActive
}

type fakeStats struct {
	err error
}

func (f *fakeStats) Aggregate(context.Context) (*core.AggregateStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.AggregateStats{TrackedPlaylists: 2, TotalPlayed: 30, TotalTracks: 100}, nil
}

type fakeAuth struct {
	authenticated bool
	completeErr   error
}

func (f *fakeAuth) AuthURL() string { return "https://accounts.example/authorize?state=x" }

func (f *fakeAuth) CompleteAuth(context.Context, *http.Request) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeAuth) Authenticated() bool { return f.authenticated }

type testDeps struct {
	shuffler *fakeShuffler
	memory   *fakeMemory
	delivery *fakeDelivery
	stats    *fakeStats
	auth     *fakeAuth
}

func newTestRouter(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	deps := &testDeps{
		shuffler: &fakeShuffler{},
		memory:   &fakeMemory{stats: map[string]core.Stats{"p1": {Played: 3, Remaining: 7, Total: 10, Percentage: 30, CycleNumber: 1}}},
		delivery: &fakeDelivery{},
		stats:    &fakeStats{},
		auth:     &fakeAuth{authenticated: true},
	}
	return setupRoutes(Dependencies{
		Shuffler: deps.shuffler,
		Memory:   deps.memory,
		Delivery: deps.delivery,
		Stats:    deps.stats,
		Auth:     deps.auth,
	}, NewMetrics(), zap.NewNop()), deps
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Result()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	if server.Addr != "0.0.0.0:9090" {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, "0.0.0.0:9090")
	}
	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}
	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}
	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "application/json" {
		t.Errorf("/healthz Content-Type = %q, expected %q", contentType, "application/json")
	}

	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" || body["service"] != "smartshuffle" {
		t.Errorf("got %v, expected ok status", body)
	}
}

func TestReadyzEndpoint(t *testing.T) {
	router, deps := newTestRouter(t)

	if resp := doRequest(t, router, http.MethodGet, "/readyz"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	deps.auth.authenticated = false
	if resp := doRequest(t, router, http.MethodGet, "/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when unauthenticated, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "smartshuffle_delivery_active") {
		t.Error("Metrics should expose smartshuffle_delivery_active")
	}
}

func TestHomeHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	homeHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "text/html" {
		t.Errorf("Expected Content-Type text/html, got %q", contentType)
	}
	for _, want := range []string{"Smart Shuffle", "/api/v1/stats", "/metrics", "/login"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("Home page should contain %q", want)
		}
	}
}

func TestLoginRedirects(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/login")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d", resp.StatusCode)
	}
	if location := resp.Header.Get("Location"); !strings.HasPrefix(location, "https://accounts.example/") {
		t.Errorf("got Location %q, expected the auth URL", location)
	}
}

func TestCallback(t *testing.T) {
	router, deps := newTestRouter(t)
	deps.auth.authenticated = false

	if resp := doRequest(t, router, http.MethodGet, "/callback?code=abc&state=x"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !deps.auth.authenticated {
		t.Error("Callback should complete authentication")
	}

	deps.auth.completeErr = errors.New("state mismatch")
	if resp := doRequest(t, router, http.MethodGet, "/callback?code=abc&state=y"); resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, deps := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var stats core.AggregateStats
	decode(t, resp, &stats)
	if stats.TrackedPlaylists != 2 || stats.TotalPlayed != 30 {
		t.Errorf("got %+v, expected the aggregate", stats)
	}

	deps.stats.err = fmt.Errorf("%w: disk full", core.ErrStorage)
	if resp := doRequest(t, router, http.MethodGet, "/api/v1/stats"); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500 on storage error, got %d", resp.StatusCode)
	}
}

func TestProgressEndpoint(t *testing.T) {
	router, deps := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/playlists/p1/progress?total=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var stats core.Stats
	decode(t, resp, &stats)
	if stats.Played != 3 || stats.Percentage != 30 {
		t.Errorf("got %+v, expected stored progress", stats)
	}
	if deps.memory.lastTotal != 10 {
		t.Errorf("got total %d, expected 10", deps.memory.lastTotal)
	}

	tests := []struct {
		path     string
		expected int
	}{
		{"/api/v1/playlists/unknown/progress", http.StatusNotFound},
		{"/api/v1/playlists/p1/progress?total=abc", http.StatusBadRequest},
		{"/api/v1/playlists/p1/progress?total=-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := doRequest(t, router, http.MethodGet, tt.path); resp.StatusCode != tt.expected {
			t.Errorf("GET %s returned %d, expected %d", tt.path, resp.StatusCode, tt.expected)
		}
	}
}

func TestResetEndpoints(t *testing.T) {
	router, deps := newTestRouter(t)

	if resp := doRequest(t, router, http.MethodDelete, "/api/v1/playlists/p1/memory"); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if len(deps.memory.resets) != 1 || deps.memory.resets[0] != "p1" {
		t.Errorf("got resets %v, expected [p1]", deps.memory.resets)
	}

	if resp := doRequest(t, router, http.MethodDelete, "/api/v1/memory"); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if deps.memory.resetAll != 1 {
		t.Errorf("got %d reset-all calls, expected 1", deps.memory.resetAll)
	}
}

func TestShuffleEndpoint(t *testing.T) {
	router, deps := newTestRouter(t)

	resp := doRequest(t, router, http.MethodPost, "/api/v1/playlists/p1/shuffle?device=dev1")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}
	var result core.ShuffleResult
	decode(t, resp, &result)
	if result.Queued != 9 || deps.shuffler.playlistID != "p1" || deps.shuffler.deviceID != "dev1" {
		t.Errorf("got %+v via %q/%q, expected p1 on dev1", result, deps.shuffler.playlistID, deps.shuffler.deviceID)
	}
}

func TestShuffleEndpointErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", fmt.Errorf("%w: empty playlist", core.ErrValidation), http.StatusBadRequest},
		{"active", core.ErrDeliveryActive, http.StatusConflict},
		{"no device", core.ErrNoDevice, http.StatusConflict},
		{"fatal", fmt.Errorf("%w: invalid tracks", core.ErrDeliveryFatal), http.StatusUnprocessableEntity},
		{"rate limited", core.ErrRateLimited, http.StatusTooManyRequests},
		{"upstream", errors.New("connection reset"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, deps := newTestRouter(t)
			deps.shuffler.err = tt.err

			resp := doRequest(t, router, http.MethodPost, "/api/v1/playlists/p1/shuffle")
			if resp.StatusCode != tt.expected {
				t.Errorf("got %d, expected %d", resp.StatusCode, tt.expected)
			}
			var body errorBody
			decode(t, resp, &body)
			if body.Error == "" {
				t.Error("Error response should carry a message")
			}
		})
	}
}

func TestDeliveryEndpoints(t *testing.T) {
	router, deps := newTestRouter(t)

	var idle map[string]any
	decode(t, doRequest(t, router, http.MethodGet, "/api/v1/delivery"), &idle)
	if idle["active"] != false {
		t.Errorf("got %v, expected inactive", idle)
	}

	deps.delivery.state = &core.QueueDeliveryState{JobID: "job-1", PlaylistID: "p1", IsActive: true}
	var active struct {
		Active   bool                     `json:"active"`
		Delivery *core.QueueDeliveryState `json:"delivery"`
	}
	decode(t, doRequest(t, router, http.MethodGet, "/api/v1/delivery"), &active)
	if !active.Active || active.Delivery == nil || active.Delivery.JobID != "job-1" {
		t.Errorf("got %+v, expected job-1 active", active)
	}

	if resp := doRequest(t, router, http.MethodPost, "/api/v1/delivery/stop"); resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
	if deps.delivery.stopped != 1 {
		t.Errorf("got %d stops, expected 1", deps.delivery.stopped)
	}
}

func TestTrailingSlashIsStripped(t *testing.T) {
	router, _ := newTestRouter(t)

	if resp := doRequest(t, router, http.MethodGet, "/api/v1/stats/"); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestMetricsRecorder(t *testing.T) {
	metrics := NewMetrics()
	var _ core.MetricsRecorder = metrics

	metrics.RecordBatch(10, false)
	metrics.RecordDeliveryStarted()
	metrics.RecordTrackDelivered()
	metrics.RecordRateLimitRetry()
	metrics.RecordDeliveryOutcome(core.OutcomeCompleted, 3*time.Second)
	metrics.SetDeliveryActive(true)

	families, err := metrics.registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	expected := map[string]float64{
		"smartshuffle_batches_total":            1,
		"smartshuffle_deliveries_started_total": 1,
		"smartshuffle_deliveries_total":         1,
		"smartshuffle_tracks_delivered_total":   1,
		"smartshuffle_rate_limit_retries_total": 1,
		"smartshuffle_delivery_active":          1,
	}
	for name, want := range expected {
		if values[name] != want {
			t.Errorf("%s = %v, expected %v", name, values[name], want)
		}
	}
}
