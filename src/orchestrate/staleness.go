package orchestrate

import (
	"time"

	"shotty/src/fleet"
)

const day = 24 * time.Hour

// LastCompleted returns the most recent completed snapshot of v.
func LastCompleted(v fleet.Volume) (fleet.Snapshot, bool) {
	for _, s := range v.Snapshots {
		if s.State == fleet.SnapshotCompleted {
			return s, true
		}
	}
	return fleet.Snapshot{}, false
}

// AgeDays is the age of s at now in whole days, both instants taken in UTC.
func AgeDays(s fleet.Snapshot, now time.Time) int {
	return int(now.UTC().Sub(s.StartTime.UTC()) / day)
}

// NeedsSnapshot reports whether v is due for a new snapshot. A nil maxAgeDays
// always snapshots. Otherwise the volume is due when it has no completed
// snapshot or its last completed one is strictly older than maxAgeDays.
func NeedsSnapshot(v fleet.Volume, maxAgeDays *int, now time.Time) bool {
	if maxAgeDays == nil {
		return true
	}
	last, ok := LastCompleted(v)
	if !ok {
		return true
	}
	return AgeDays(last, now) > *maxAgeDays
}
