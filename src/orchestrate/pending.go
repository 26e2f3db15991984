package orchestrate

import "shotty/src/fleet"

// HasPending reports whether the most recent snapshot of v is still pending.
// Only the head of the list is inspected; provider ordering is trusted.
func HasPending(v fleet.Volume) bool {
	return len(v.Snapshots) > 0 && v.Snapshots[0].State == fleet.SnapshotPending
}
