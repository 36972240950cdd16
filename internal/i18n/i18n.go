// Package i18n provides internationalization support for user-facing messages
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	// DefaultLanguage is the fallback language when no translation is available
	DefaultLanguage = "en"
	// BerneseGermanMessages is a Swiss Dialect spoken in the Canton of Bern
	BerneseGermanMessages = "ch_be"
)

// supportedTags maps BCP-47 tags to catalog codes, in matcher order
var supportedTags = []struct {
	tag  language.Tag
	code string
}{
	{language.English, DefaultLanguage},
	{language.MustParse("gsw-CH"), BerneseGermanMessages},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(supportedTags))
	for i, s := range supportedTags {
		tags[i] = s.tag
	}
	return language.NewMatcher(tags)
}()

// Localizer provides translation functionality
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer creates a new localizer for the specified language. Catalog codes
// ("en", "ch_be") are used as is; anything else is matched as a BCP-47 tag.
func NewLocalizer(language string) *Localizer {
	code := Resolve(language)
	return &Localizer{
		language: code,
		messages: getMessages(code),
	}
}

// Resolve maps a catalog code or BCP-47 tag to a supported catalog code.
func Resolve(lang string) string {
	if _, ok := catalogs[lang]; ok {
		return lang
	}

	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return DefaultLanguage
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return DefaultLanguage
	}
	return supportedTags[index].code
}

// Language returns the resolved catalog code
func (l *Localizer) Language() string {
	return l.language
}

// T translates a message key, with optional parameters for formatting
func (l *Localizer) T(key string, args ...interface{}) string {
	if message, exists := l.messages[key]; exists {
		if len(args) > 0 {
			return fmt.Sprintf(message, args...)
		}
		return message
	}

	// Fallback to English if key not found in current language
	if l.language != DefaultLanguage {
		if fallbackMessage, exists := getMessages(DefaultLanguage)[key]; exists {
			if len(args) > 0 {
				return fmt.Sprintf(fallbackMessage, args...)
			}
			return fallbackMessage
		}
	}

	// Ultimate fallback: return the key itself
	return key
}

// GetSupportedLanguages returns list of supported language codes
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, BerneseGermanMessages}
}

var catalogs = map[string]map[string]string{
	DefaultLanguage:       englishMessages,
	BerneseGermanMessages: berneseGermanMessages,
}

// getMessages returns the message map for a given language
func getMessages(language string) map[string]string {
	if messages, ok := catalogs[language]; ok {
		return messages
	}
	return englishMessages
}
