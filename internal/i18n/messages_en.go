package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":          "Something went wrong. Please try again.",
	"error.delivery":         "❌ Queueing stopped: %s",
	"error.delivery_active":  "⏳ A shuffle is already being queued. Stop it first or wait for it to finish.",
	"error.no_device":        "🔇 No Spotify device found. Open Spotify on any device and try again.",
	"error.playlist_empty":   "This playlist has no playable tracks.",
	"error.playlist_missing": "Please choose a playlist to shuffle.",

	// Delivery notifications
	"delivery.start":              "🔀 %s\nQueueing %d tracks...",
	"delivery.progress":           "🔀 %s\nQueued %d of %d tracks",
	"delivery.complete":           "✅ %s\n%d tracks queued",
	"delivery.complete_remaining": "✅ %s\n%d tracks queued, %d still unheard this cycle",

	// Shuffle session summaries
	"shuffle.started":        "▶️ Playing %s on %s, %d more tracks on the way",
	"shuffle.cycle_complete": "🎉 You've heard every track of %s. Starting cycle %d.",
	"shuffle.progress":       "%s: %d of %d heard (%d%%), cycle %d",
	"shuffle.reset":          "🧹 Forgot shuffle history for %s",
	"shuffle.reset_all":      "🧹 Forgot shuffle history for all playlists",
}
