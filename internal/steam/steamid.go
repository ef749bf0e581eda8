package steam

import "strconv"

// SteamID64 bit layout: universe(8) | type(4) | instance(20) | account(32)
const (
	accountTypeIndividual = 1
	instanceWeb           = 4
	universePublic        = 1
	universeDev           = 4
)

// IsValidSteamID64 reports whether s is a 17-digit SteamID64 of an individual account
func IsValidSteamID64(s string) bool {
	if len(s) != 17 {
		return false
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return false
	}

	accountID := id & 0xFFFFFFFF
	instance := (id >> 32) & 0xFFFFF
	accountType := (id >> 52) & 0xF
	universe := id >> 56

	if universe < universePublic || universe > universeDev {
		return false
	}
	return accountType == accountTypeIndividual && accountID != 0 && instance <= instanceWeb
}
