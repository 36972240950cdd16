// Package main provides the Smart Shuffle CLI application entry point.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"smartshuffle/internal/core"
	"smartshuffle/internal/i18n"
)

const (
	defaultServerHost = "0.0.0.0"
	envPrefix         = "SMARTSHUFFLE"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "smartshuffle",
	Short: "Smart Shuffle - Spotify shuffle without repeats",
	Long: `Smart Shuffle remembers which tracks of a Spotify playlist you have already heard
and queues the rest in random order, so every track plays once before any repeats.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("spotify-redirect-url", "", "Spotify OAuth redirect URL (default derived from the server address)")
	flags.String("spotify-token-path", defaults.Spotify.TokenPath, "Spotify token file")
	flags.String("spotify-device-id", "", "Preferred playback device ID")
	flags.String("default-playlist-id", "", "Playlist to shuffle when none is given")
	flags.String("storage-path", defaults.Storage.Path, "SQLite database path (:memory: keeps state in-process)")
	flags.Int("storage-cache-size", defaults.Storage.CacheSize, "Read-through cache entries in front of the database (0 disables)")
	flags.Int("delivery-stale-after-mins", core.DefaultStaleAfterMins, "Minutes after which an active delivery is considered abandoned")
	flags.Int("delivery-health-check-every", core.DefaultHealthCheckEveryTracks, "Check device health and liveness every N tracks")
	flags.Int("delivery-max-rate-limit-retries", core.DefaultMaxRateLimitRetries, "Retries per track after a rate limit response")
	flags.Int("delivery-rate-limit-base-delay-ms", core.DefaultRateLimitBaseDelayMs, "First rate limit backoff delay in milliseconds")
	flags.Int("delivery-min-request-delay-ms", core.DefaultMinRequestDelayMs, "Pause between enqueue requests in milliseconds")
	flags.Int("delivery-requests-per-minute", core.DefaultRequestsPerMinute, "Maximum enqueue requests per device per minute (0 disables)")
	flags.Int("delivery-progress-every-tracks", core.DefaultProgressEveryTracks, "Send a progress update every N tracks")
	flags.Int("delivery-progress-every-ms", core.DefaultProgressEveryMs, "Minimum milliseconds between progress updates")
	flags.Int("delivery-max-invalid-percent", core.DefaultMaxInvalidPercent, "Abort when more than this percentage of track references is malformed")
	flags.Bool("telegram-enabled", false, "Send delivery progress to Telegram")
	flags.String("telegram-bot-token", "", "Telegram bot token")
	flags.Int64("telegram-chat-id", 0, "Telegram chat ID for progress messages")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Message language (%s or a BCP-47 tag)", supportedLangs))
	flags.String("housekeeping-schedule", core.DefaultHousekeepingSchedule, "Cron schedule for resuming and reclaiming deliveries")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, shuffleCmd, statsCmd, resetCmd, playlistsCmd, devicesCmd, loginCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureServer(cfg)
	configureSpotify(cfg)
	configureStorage(cfg)
	configureDelivery(cfg)
	configureNotify(cfg)
	configureApp(cfg)

	return cfg
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	if port := viper.GetInt("server-port"); port > 0 {
		cfg.Server.Port = port
	}
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	cfg.Spotify.RedirectURL = viper.GetString("spotify-redirect-url")
	cfg.Spotify.DeviceID = viper.GetString("spotify-device-id")
	if tokenPath := viper.GetString("spotify-token-path"); tokenPath != "" {
		cfg.Spotify.TokenPath = tokenPath
	}

	if cfg.Spotify.RedirectURL == "" {
		serverHost := cfg.Server.Host
		if serverHost == defaultServerHost {
			serverHost = "127.0.0.1"
		}
		cfg.Spotify.RedirectURL = fmt.Sprintf("http://%s:%d/callback", serverHost, cfg.Server.Port)
	}

	cfg.Shuffle.DefaultPlaylistID = viper.GetString("default-playlist-id")
}

func configureStorage(cfg *core.Config) {
	if path := viper.GetString("storage-path"); path != "" {
		cfg.Storage.Path = path
	}
	cfg.Storage.CacheSize = viper.GetInt("storage-cache-size")
	if cfg.Storage.CacheSize < 0 {
		cfg.Storage.CacheSize = 0
	}
}

// positiveOr returns the flag value, or fallback when it is not positive.
func positiveOr(key string, fallback int) int {
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	return fallback
}

func configureDelivery(cfg *core.Config) {
	d := &cfg.Delivery
	d.StaleAfter = time.Duration(positiveOr("delivery-stale-after-mins", core.DefaultStaleAfterMins)) * time.Minute
	d.HealthCheckEveryTracks = positiveOr("delivery-health-check-every", core.DefaultHealthCheckEveryTracks)
	d.MaxRateLimitRetries = viper.GetInt("delivery-max-rate-limit-retries")
	if d.MaxRateLimitRetries < 0 {
		d.MaxRateLimitRetries = 0
	}
	d.RateLimitBaseDelay = time.Duration(positiveOr("delivery-rate-limit-base-delay-ms", core.DefaultRateLimitBaseDelayMs)) * time.Millisecond
	d.MinRequestDelay = time.Duration(max(viper.GetInt("delivery-min-request-delay-ms"), 0)) * time.Millisecond
	d.RequestsPerMinute = max(viper.GetInt("delivery-requests-per-minute"), 0)
	d.ProgressEveryTracks = positiveOr("delivery-progress-every-tracks", core.DefaultProgressEveryTracks)
	d.ProgressEvery = time.Duration(max(viper.GetInt("delivery-progress-every-ms"), 0)) * time.Millisecond

	d.MaxInvalidPercent = viper.GetInt("delivery-max-invalid-percent")
	if d.MaxInvalidPercent < 0 || d.MaxInvalidPercent > 100 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid max invalid percent (%d), using default (%d)\n",
			d.MaxInvalidPercent, core.DefaultMaxInvalidPercent)
		d.MaxInvalidPercent = core.DefaultMaxInvalidPercent
	}
}

func configureNotify(cfg *core.Config) {
	cfg.Notify.TelegramEnabled = viper.GetBool("telegram-enabled")
	cfg.Notify.TelegramBotToken = viper.GetString("telegram-bot-token")
	cfg.Notify.TelegramChatID = viper.GetInt64("telegram-chat-id")
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}

	resolved := i18n.Resolve(cfg.App.Language)
	if resolved == i18n.DefaultLanguage && !strings.HasPrefix(strings.ToLower(cfg.App.Language), i18n.DefaultLanguage) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
	}
	cfg.App.Language = resolved

	cfg.App.HousekeepingSchedule = viper.GetString("housekeeping-schedule")
	if cfg.App.HousekeepingSchedule == "" {
		cfg.App.HousekeepingSchedule = core.DefaultHousekeepingSchedule
	}
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.Notify.TelegramEnabled {
		if config.Notify.TelegramBotToken == "" {
			return fmt.Errorf("telegram bot token is required when Telegram is enabled")
		}
		if config.Notify.TelegramChatID == 0 {
			return fmt.Errorf("telegram chat ID is required when Telegram is enabled")
		}
	}

	return nil
}
