package reconcile

// StopPolicy says, per event kind, whether detecting it ends polling of the profile
type StopPolicy map[EventKind]bool

// DefaultStopPolicy stops tracking on every VAC and game ban. Community bans
// keep the profile tracked unless communityBanStops is set.
func DefaultStopPolicy(communityBanStops bool) StopPolicy {
	return StopPolicy{
		CommunityBanStarted: communityBanStops,
		VACBanStarted:       true,
		VACBanRepeated:      true,
		GameBanRepeated:     true,
		GameBanStarted:      true,
	}
}

// StopsTracking reports whether any of the events ends tracking.
// Kinds missing from the table do not.
func (p StopPolicy) StopsTracking(events []EventKind) bool {
	for _, e := range events {
		if p[e] {
			return true
		}
	}
	return false
}
