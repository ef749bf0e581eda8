package storage

import "time"

// Profile represents a tracked Steam identity and its last known ban state
type Profile struct {
	SteamID          string
	CommunityBanned  bool
	VACBanned        bool
	NumberOfVACBans  int
	NumberOfGameBans int
	Tracked          bool
	Subscribers      []string // Discord user IDs, set semantics
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BanState is the subset of profile fields owned by the ban checker
type BanState struct {
	CommunityBanned  bool
	VACBanned        bool
	NumberOfVACBans  int
	NumberOfGameBans int
}

// State returns the ban fields of the profile
func (p *Profile) State() BanState {
	return BanState{
		CommunityBanned:  p.CommunityBanned,
		VACBanned:        p.VACBanned,
		NumberOfVACBans:  p.NumberOfVACBans,
		NumberOfGameBans: p.NumberOfGameBans,
	}
}

// HasSubscriber reports whether the given user subscribed to the profile
func (p *Profile) HasSubscriber(subscriberID string) bool {
	for _, s := range p.Subscribers {
		if s == subscriberID {
			return true
		}
	}
	return false
}

// Subscriber is an approved Discord user allowed to register profiles
type Subscriber struct {
	SubscriberID string
	DisplayName  string
	CreatedAt    time.Time
}

// AccessRequest is a pending /request awaiting admin approval
type AccessRequest struct {
	SubscriberID string
	DisplayName  string
	RequestedAt  time.Time
}

// BanEvent is a recorded ban transition for a profile
type BanEvent struct {
	ID         int64
	SteamID    string
	Kind       string
	DetectedAt time.Time
}

// RegisterOutcome describes what RegisterProfile changed
type RegisterOutcome int

const (
	// ProfileCreated means a new profile row was inserted
	ProfileCreated RegisterOutcome = iota
	// SubscriberAdded means the profile existed and the subscriber was added to it
	SubscriberAdded
	// AlreadySubscribed means nothing was written
	AlreadySubscribed
)

// Stats aggregates profile counts for the /stats command
type Stats struct {
	ProfileCount       int
	BannedProfiles     int
	SubscriberCount    int
	UserProfiles       int
	UserProfilesBanned int
}
