package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"smartshuffle/internal/i18n"
)

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# Smart Shuffle Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: SMARTSHUFFLE_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	generateSpotifySection(&content, cmd)
	generateStorageSection(&content, cmd)
	generateDeliverySection(&content, cmd)
	generateTelegramSection(&content, cmd)
	generateAppSection(&content, cmd)
	generateServerSection(&content, cmd)
	generateLoggingSection(&content, cmd)
	generateQuickSetupGuide(&content)

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}

// writeSetting writes one KEY=default line with its description.
func writeSetting(content *strings.Builder, cmd *cobra.Command, flagName, description string) {
	def := getDefaultValueString(cmd, flagName)
	fmt.Fprintf(content, "%s=%s  # %s (default: %s)\n", flagToEnvVar(flagName), def, description, def)
}

func writeHeader(content *strings.Builder, title, flags string) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# CLI: %s\n", flags)
}

func generateSpotifySection(content *strings.Builder, cmd *cobra.Command) {
	content.WriteString("# =============================================================================\n")
	content.WriteString("# SPOTIFY CONFIGURATION - Required\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("# Get these from https://developer.spotify.com/dashboard\n")
	content.WriteString("# CLI: --spotify-client-id, --spotify-client-secret, --default-playlist-id\n")
	content.WriteString("\n")

	fmt.Fprintf(content, "%s=your_spotify_client_id_here          # Spotify app client ID\n",
		flagToEnvVar("spotify-client-id"))
	fmt.Fprintf(content, "%s=your_spotify_client_secret_here  # Spotify app client secret\n",
		flagToEnvVar("spotify-client-secret"))
	fmt.Fprintf(content, "%s=http://127.0.0.1:8080/callback    # OAuth callback URL (default: auto-generated)\n",
		flagToEnvVar("spotify-redirect-url"))
	writeSetting(content, cmd, "spotify-token-path", "Token storage path")
	fmt.Fprintf(content, "# %s=                                # Preferred device ID (see: smartshuffle devices)\n",
		flagToEnvVar("spotify-device-id"))
	fmt.Fprintf(content, "# %s=                              # Playlist to shuffle when none is given\n",
		flagToEnvVar("default-playlist-id"))
	content.WriteString("\n")
}

func generateStorageSection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "Storage - Shuffle memory and delivery checkpoints", "--storage-path, --storage-cache-size")
	writeSetting(content, cmd, "storage-path", "SQLite file, or :memory: for in-process only")
	writeSetting(content, cmd, "storage-cache-size", "Cached records in front of the database, 0 disables")
	content.WriteString("\n")
}

func generateDeliverySection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "Queue Delivery - Pacing, retries and health checks", "--delivery-*")
	writeSetting(content, cmd, "delivery-stale-after-mins", "Minutes before an active delivery counts as abandoned")
	writeSetting(content, cmd, "delivery-health-check-every", "Check the device every N tracks")
	writeSetting(content, cmd, "delivery-max-rate-limit-retries", "Retries per track after HTTP 429")
	writeSetting(content, cmd, "delivery-rate-limit-base-delay-ms", "First backoff delay, doubled per retry")
	writeSetting(content, cmd, "delivery-min-request-delay-ms", "Pause between enqueue requests")
	writeSetting(content, cmd, "delivery-requests-per-minute", "Enqueue cap per device per minute, 0 disables")
	writeSetting(content, cmd, "delivery-progress-every-tracks", "Progress update every N tracks")
	writeSetting(content, cmd, "delivery-progress-every-ms", "Minimum time between progress updates")
	writeSetting(content, cmd, "delivery-max-invalid-percent", "Abort above this share of malformed references")
	content.WriteString("\n")
}

func generateTelegramSection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "Telegram Progress Messages (Optional)", "--telegram-enabled, --telegram-bot-token, --telegram-chat-id")
	writeSetting(content, cmd, "telegram-enabled", "Post delivery progress to a chat")
	fmt.Fprintf(content, "# %s=123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11  # Bot token from @BotFather\n",
		flagToEnvVar("telegram-bot-token"))
	fmt.Fprintf(content, "# %s=123456789                  # Chat ID (get from @userinfobot)\n",
		flagToEnvVar("telegram-chat-id"))
	content.WriteString("\n")
}

func generateAppSection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "Application", "--language, --housekeeping-schedule")
	def := getDefaultValueString(cmd, "language")
	fmt.Fprintf(content, "%s=%s  # Message language: %s (default: %s)\n",
		flagToEnvVar("language"), def, strings.Join(i18n.GetSupportedLanguages(), ", "), def)
	writeSetting(content, cmd, "housekeeping-schedule", "Cron schedule for resuming and reclaiming deliveries")
	content.WriteString("\n")
}

func generateServerSection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "HTTP Server Configuration", "--server-host, --server-port")
	hostDefault := getDefaultValueString(cmd, "server-host")
	fmt.Fprintf(content, "%s=%s  # Server bind address (default: %s)\n",
		flagToEnvVar("server-host"), "127.0.0.1", hostDefault)
	writeSetting(content, cmd, "server-port", "Server port")
	content.WriteString("\n")
}

func generateLoggingSection(content *strings.Builder, cmd *cobra.Command) {
	writeHeader(content, "Logging Configuration", "--log-level, --log-format")
	writeSetting(content, cmd, "log-level", "Log level: debug, info, warn, error")
	writeSetting(content, cmd, "log-format", "Log format: json, console")
	content.WriteString("\n")
}

func generateQuickSetupGuide(content *strings.Builder) {
	content.WriteString("# =============================================================================\n")
	content.WriteString("# QUICK SETUP GUIDE\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("\n")
	content.WriteString("# 1. SPOTIFY SETUP (Required):\n")
	content.WriteString("#    - Go to https://developer.spotify.com/dashboard\n")
	content.WriteString("#    - Create new app with name \"Smart Shuffle\"\n")
	content.WriteString("#    - Add redirect URI: http://127.0.0.1:8080/callback\n")
	content.WriteString("#    - Copy Client ID and Secret to config above\n")
	content.WriteString("#    - Run `smartshuffle login` or open http://127.0.0.1:8080/login\n")
	content.WriteString("#    - Spotify Premium is required for queue control\n")
	content.WriteString("\n")
	content.WriteString("# 2. SHUFFLE:\n")
	content.WriteString("#    smartshuffle playlists                    # Find a playlist ID\n")
	content.WriteString("#    smartshuffle shuffle <playlist-id>        # Play and queue the next batch\n")
	content.WriteString("#    smartshuffle stats                        # See how much of each playlist you heard\n")
	content.WriteString("#    smartshuffle reset <playlist-id>          # Start the playlist over\n")
	content.WriteString("\n")
	content.WriteString("# 3. SERVICE MODE:\n")
	content.WriteString("#    smartshuffle serve                        # Control API, /metrics, housekeeping\n")
	content.WriteString("#    curl -X POST localhost:8080/api/v1/playlists/<id>/shuffle\n")
}
