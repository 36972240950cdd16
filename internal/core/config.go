package core

import (
	"time"
)

const (
	// DefaultServerPort is the HTTP control/metrics port.
	DefaultServerPort = 8080
	// DefaultStaleAfterMins is how long an active delivery may live before it is considered abandoned.
	DefaultStaleAfterMins = 45
	// DefaultHealthCheckEveryTracks is the delivery liveness/health checkpoint interval.
	DefaultHealthCheckEveryTracks = 25
	// DefaultMaxRateLimitRetries caps exponential backoff on rate-limit signals.
	DefaultMaxRateLimitRetries = 3
	// DefaultRateLimitBaseDelayMs is the first backoff delay; it doubles on every retry.
	DefaultRateLimitBaseDelayMs = 1000
	// DefaultMinRequestDelayMs is the fixed pause between enqueue requests.
	DefaultMinRequestDelayMs = 250
	// DefaultRequestsPerMinute caps enqueue requests per device in a sliding minute.
	DefaultRequestsPerMinute = 120
	// DefaultProgressEveryTracks and DefaultProgressEveryMs throttle progress notifications.
	DefaultProgressEveryTracks = 3
	DefaultProgressEveryMs     = 2000
	// DefaultMaxInvalidPercent aborts a delivery when more references than this are malformed.
	DefaultMaxInvalidPercent = 10
	// DefaultKVCacheSize bounds the read-through cache in front of the SQLite substrate.
	DefaultKVCacheSize = 512
	// DefaultHousekeepingSchedule is the cron spec for stale-delivery reclamation.
	DefaultHousekeepingSchedule = "@every 5m"
)

type Config struct {
	Spotify  SpotifyConfig
	Storage  StorageConfig
	Shuffle  ShuffleConfig
	Delivery DeliveryConfig
	Notify   NotifyConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenPath    string
	DeviceID     string // preferred playback device; empty picks the active one
}

type StorageConfig struct {
	Path      string // SQLite file; ":memory:" keeps everything in-process
	CacheSize int
}

type ShuffleConfig struct {
	DefaultPlaylistID string
}

type DeliveryConfig struct {
	StaleAfter             time.Duration
	HealthCheckEveryTracks int
	MaxRateLimitRetries    int
	RateLimitBaseDelay     time.Duration
	MinRequestDelay        time.Duration
	RequestsPerMinute      int
	ProgressEveryTracks    int
	ProgressEvery          time.Duration
	MaxInvalidPercent      int
}

type NotifyConfig struct {
	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   int64
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language             string
	HousekeepingSchedule string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			TokenPath: "./spotify_token.json",
		},
		Storage: StorageConfig{
			Path:      "./smartshuffle.db",
			CacheSize: DefaultKVCacheSize,
		},
		Delivery: DefaultDeliveryConfig(),
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:             "en",
			HousekeepingSchedule: DefaultHousekeepingSchedule,
		},
	}
}

// DefaultDeliveryConfig returns the production pacing and retry settings.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		StaleAfter:             DefaultStaleAfterMins * time.Minute,
		HealthCheckEveryTracks: DefaultHealthCheckEveryTracks,
		MaxRateLimitRetries:    DefaultMaxRateLimitRetries,
		RateLimitBaseDelay:     DefaultRateLimitBaseDelayMs * time.Millisecond,
		MinRequestDelay:        DefaultMinRequestDelayMs * time.Millisecond,
		RequestsPerMinute:      DefaultRequestsPerMinute,
		ProgressEveryTracks:    DefaultProgressEveryTracks,
		ProgressEvery:          DefaultProgressEveryMs * time.Millisecond,
		MaxInvalidPercent:      DefaultMaxInvalidPercent,
	}
}
