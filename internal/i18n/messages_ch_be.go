package i18n

// berneseGermanMessages contains all Bernese Swiss German (Bärndütsch) translations
var berneseGermanMessages = map[string]string{
	// Error messages
	"error.generic":          "Öppis isch schief gloffe. Probier's haut nomau, bitte.",
	"error.delivery":         "❌ D Warteschlange isch abbroche: %s",
	"error.delivery_active":  "⏳ Es louft scho e Shuffle. Stopp dä zersch oder wart bis er fertig isch.",
	"error.no_device":        "🔇 Kes Spotify-Grät gfunde. Mach Spotify uf emne Grät uf und probier's nomau.",
	"error.playlist_empty":   "I dere Playliste hets keni abspiubare Lieder.",
	"error.playlist_missing": "Bitte wähl e Playliste zum Shuffle.",

	// Delivery notifications
	"delivery.start":              "🔀 %s\nTue %d Lieder i d Warteschlange...",
	"delivery.progress":           "🔀 %s\n%d vo %d Lieder i dr Warteschlange",
	"delivery.complete":           "✅ %s\n%d Lieder i dr Warteschlange",
	"delivery.complete_remaining": "✅ %s\n%d Lieder i dr Warteschlange, %d no nid ghört i däm Durchgang",

	// Shuffle session summaries
	"shuffle.started":        "▶️ Spiut %s uf %s, no %d Lieder chöme",
	"shuffle.cycle_complete": "🎉 Du hesch jedes Lied vo %s ghört. Durchgang %d fat a.",
	"shuffle.progress":       "%s: %d vo %d ghört (%d%%), Durchgang %d",
	"shuffle.reset":          "🧹 Shuffle-Verlouf vo %s vergässe",
	"shuffle.reset_all":      "🧹 Shuffle-Verlouf vo aune Playliste vergässe",
}
