// Package fingerprint computes playlist content fingerprints and validates track references.
package fingerprint

import (
	"hash/fnv"
	"strconv"
)

const (
	// Empty is the fingerprint of a playlist with no tracks.
	Empty = "0_0"

	idDelimiter = "\x1f"
)

// Compute returns a deterministic fingerprint of the ordered track IDs.
// The format is "{count}_{hex digest}"; any addition, removal or reordering changes it.
func Compute(trackIDs []string) string {
	if len(trackIDs) == 0 {
		return Empty
	}

	h := fnv.New32a()
	for i, id := range trackIDs {
		if i > 0 {
			_, _ = h.Write([]byte(idDelimiter))
		}
		_, _ = h.Write([]byte(id))
	}

	return strconv.Itoa(len(trackIDs)) + "_" + strconv.FormatUint(uint64(h.Sum32()), 16)
}
