package reconcile

import (
	"errors"
	"fmt"

	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

// EventKind is a classified ban state transition
type EventKind string

const (
	CommunityBanStarted EventKind = "community_ban_started"
	VACBanStarted       EventKind = "vac_ban_started"
	VACBanRepeated      EventKind = "vac_ban_repeated"
	GameBanRepeated     EventKind = "game_ban_repeated"
	GameBanStarted      EventKind = "game_ban_started"
)

// EventKinds lists every kind in evaluation order
var EventKinds = []EventKind{
	CommunityBanStarted,
	VACBanStarted,
	VACBanRepeated,
	GameBanRepeated,
	GameBanStarted,
}

var (
	// ErrUnknownIdentity means the API returned a Steam ID with no stored profile
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrCountDecreased means a ban counter went down; the stored count is kept
	ErrCountDecreased = errors.New("ban count decreased")
)

// Classify compares the stored and current ban state of one profile and
// returns the events that fired, in evaluation order, together with the state
// to store. Each field is evaluated on its own. A VAC or game ban count lower
// than the stored one keeps the stored count and the error wraps
// ErrCountDecreased; events from the other fields are still returned.
func Classify(stored, current storage.BanState) ([]EventKind, storage.BanState, error) {
	next := current
	var errs []error
	if current.NumberOfVACBans < stored.NumberOfVACBans {
		errs = append(errs, fmt.Errorf("vac bans %d -> %d: %w", stored.NumberOfVACBans, current.NumberOfVACBans, ErrCountDecreased))
		next.NumberOfVACBans = stored.NumberOfVACBans
	}
	if current.NumberOfGameBans < stored.NumberOfGameBans {
		errs = append(errs, fmt.Errorf("game bans %d -> %d: %w", stored.NumberOfGameBans, current.NumberOfGameBans, ErrCountDecreased))
		next.NumberOfGameBans = stored.NumberOfGameBans
	}

	var events []EventKind

	if next.CommunityBanned && !stored.CommunityBanned {
		events = append(events, CommunityBanStarted)
	}

	if next.VACBanned && !stored.VACBanned {
		events = append(events, VACBanStarted)
	} else if next.VACBanned && next.NumberOfVACBans > stored.NumberOfVACBans {
		events = append(events, VACBanRepeated)
	}

	if next.NumberOfGameBans > stored.NumberOfGameBans {
		if stored.NumberOfGameBans > 0 {
			events = append(events, GameBanRepeated)
		} else {
			events = append(events, GameBanStarted)
		}
	}

	return events, next, errors.Join(errs...)
}

func kindStrings(events []EventKind) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}
