package fingerprint

import (
	"regexp"

	"go.uber.org/zap"
)

// trackReferencePattern is the only accepted shape of a playable track reference.
var trackReferencePattern = regexp.MustCompile(`^spotify:track:[A-Za-z0-9]{22}$`)

// ValidationResult partitions a reference list into accepted and rejected entries.
type ValidationResult struct {
	Valid        []string
	Invalid      []string
	InvalidCount int
}

// IsValidTrackReference reports whether ref is a well-formed track URI.
func IsValidTrackReference(ref string) bool {
	return trackReferencePattern.MatchString(ref)
}

// IsValidReferenceValue is IsValidTrackReference for untyped input, e.g. decoded JSON.
// Non-string values, including nil, are rejected.
func IsValidReferenceValue(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return IsValidTrackReference(s)
}

// ValidateReferences splits refs into valid and invalid, preserving order. Every rejection is logged.
func ValidateReferences(refs []string, logger *zap.Logger) ValidationResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	result := ValidationResult{
		Valid: make([]string, 0, len(refs)),
	}

	for i, ref := range refs {
		if IsValidTrackReference(ref) {
			result.Valid = append(result.Valid, ref)
			continue
		}

		logger.Warn("Rejected malformed track reference",
			zap.Int("index", i),
			zap.String("reference", ref))
		result.Invalid = append(result.Invalid, ref)
		result.InvalidCount++
	}

	return result
}

// TrackIDFromReference extracts the track ID from a "spotify:track:<id>" reference.
// It returns "" if ref is malformed.
func TrackIDFromReference(ref string) string {
	if !IsValidTrackReference(ref) {
		return ""
	}
	return ref[len(referencePrefix):]
}

// ReferenceFromTrackID builds the reference for a bare track ID.
func ReferenceFromTrackID(id string) string {
	return referencePrefix + id
}

const referencePrefix = "spotify:track:"
