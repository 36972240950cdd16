package core

import "math"

// Batch sizing thresholds by playlist length.
const (
	SmallPlaylistMax  = 150
	MediumPlaylistMax = 500
	LargePlaylistMax  = 1500
	MaxBatchSize      = 400
)

// BatchSize returns the target number of tracks to queue for a playlist of total tracks.
func BatchSize(total int) int {
	switch {
	case total <= 0:
		return 0
	case total <= SmallPlaylistMax:
		return total
	case total <= MediumPlaylistMax:
		return total / 2
	case total <= LargePlaylistMax:
		return total / 3
	default:
		return min(MaxBatchSize, total/4)
	}
}

// newStats builds a progress projection. Remaining never goes negative.
func newStats(played, total, cycleNumber int, cycleComplete bool) Stats {
	remaining := total - played
	if remaining < 0 {
		remaining = 0
	}

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(100 * float64(played) / float64(total)))
	}

	return Stats{
		Played:        played,
		Remaining:     remaining,
		Total:         total,
		Percentage:    percentage,
		CycleNumber:   cycleNumber,
		CycleComplete: cycleComplete,
	}
}

// projectProgress is the reader view of a memory record. A finished cycle is reported
// as the start of the next one, since the rollover only happens on the next batch.
func projectProgress(played, total, cycleNumber int) Stats {
	if total > 0 && played >= total {
		return newStats(0, total, cycleNumber+1, true)
	}
	return newStats(played, total, cycleNumber, false)
}
