// Package registry manages who may use the bot and which Steam profiles
// they track.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IceQ1337/SteamBanChecker/internal/steam"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

const (
	// DefaultPageSize is the number of subscribers per list page
	DefaultPageSize = 6

	// RecentEventLimit is the number of ban events Stats reports per user
	RecentEventLimit = 5
)

// Store is the part of the record store the registry needs
type Store interface {
	RegisterProfile(ctx context.Context, p *storage.Profile, subscriberID string) (storage.RegisterOutcome, error)
	GetProfile(ctx context.Context, steamID string) (*storage.Profile, error)
	Stats(ctx context.Context, subscriberID string) (*storage.Stats, error)
	RecentBanEvents(ctx context.Context, subscriberID string, limit int) ([]*storage.BanEvent, error)

	AddSubscriber(ctx context.Context, s *storage.Subscriber) error
	RemoveSubscriber(ctx context.Context, subscriberID string) error
	GetSubscriber(ctx context.Context, subscriberID string) (*storage.Subscriber, error)
	ListSubscribers(ctx context.Context, offset, limit int) ([]*storage.Subscriber, error)
	CountSubscribers(ctx context.Context) (int, error)

	AddAccessRequest(ctx context.Context, req *storage.AccessRequest) error
	GetAccessRequest(ctx context.Context, subscriberID string) (*storage.AccessRequest, error)
	RemoveAccessRequest(ctx context.Context, subscriberID string) error
}

// Resolver turns user input into a SteamID64
type Resolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// BanFetcher returns the current ban state of Steam IDs
type BanFetcher interface {
	GetPlayerBans(ctx context.Context, steamIDs []string) ([]steam.PlayerBans, error)
}

// RegisterResult is the outcome of RegisterIdentity
type RegisterResult int

const (
	InvalidReference RegisterResult = iota
	Created
	Added
	AlreadyRegistered
)

func (r RegisterResult) String() string {
	switch r {
	case Created:
		return "created"
	case Added:
		return "added"
	case AlreadyRegistered:
		return "already_registered"
	default:
		return "invalid_reference"
	}
}

// ApproveResult is the outcome of ApproveSubscriber
type ApproveResult int

const (
	Approved ApproveResult = iota
	AlreadyApproved
)

// RequestResult is the outcome of RequestAccess
type RequestResult int

const (
	RequestSent RequestResult = iota
	RequestPending
	RequestAlreadyApproved
	RequestFromAdmin
	RequestsDisabled
)

// Page is one page of approved subscribers. Number is 1-based.
type Page struct {
	Number      int
	Size        int
	Total       int
	TotalPages  int
	Subscribers []*storage.Subscriber
}

// Stats are the numbers shown by /stats
type Stats struct {
	storage.Stats
	Checked           int
	BannedPercent     int
	UserBannedPercent int

	// Latest bans on the user's profiles, newest first
	RecentEvents []*storage.BanEvent
}

// Config holds the access control settings
type Config struct {
	AdminID       string
	AllowRequests bool
}

// Manager handles identity registration and subscriber administration
type Manager struct {
	store    Store
	resolver Resolver
	fetcher  BanFetcher
	cfg      Config
}

// New creates a registry manager
func New(store Store, resolver Resolver, fetcher BanFetcher, cfg Config) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		fetcher:  fetcher,
		cfg:      cfg,
	}
}

// IsAdmin reports whether the user owns the bot
func (m *Manager) IsAdmin(subscriberID string) bool {
	return m.cfg.AdminID != "" && subscriberID == m.cfg.AdminID
}

// AdminID returns the Discord user ID of the bot owner
func (m *Manager) AdminID() string {
	return m.cfg.AdminID
}

// IsAuthorized reports whether the user may register profiles
func (m *Manager) IsAuthorized(ctx context.Context, subscriberID string) (bool, error) {
	if m.IsAdmin(subscriberID) {
		return true, nil
	}
	_, err := m.store.GetSubscriber(ctx, subscriberID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RegisterIdentity resolves rawReference and subscribes subscriberID to the
// profile, creating it if needed. New profiles start from the ban state Steam
// reports now, so bans that predate registration are not announced. If Steam
// cannot be reached the profile starts from default ban fields.
// The resolved Steam ID is returned with every result except InvalidReference.
func (m *Manager) RegisterIdentity(ctx context.Context, subscriberID, rawReference string) (RegisterResult, string, error) {
	steamID, err := m.resolver.Resolve(ctx, rawReference)
	if errors.Is(err, steam.ErrInvalidReference) {
		slog.Debug("Rejected profile reference", "subscriber", subscriberID, "input", rawReference)
		return InvalidReference, "", nil
	}
	if err != nil {
		return InvalidReference, "", fmt.Errorf("failed to resolve %q: %w", rawReference, err)
	}

	profile := &storage.Profile{SteamID: steamID, Tracked: true}

	existing, err := m.store.GetProfile(ctx, steamID)
	switch {
	case err == nil:
		if existing.HasSubscriber(subscriberID) {
			return AlreadyRegistered, steamID, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		players, err := m.fetcher.GetPlayerBans(ctx, []string{steamID})
		if err != nil {
			// Start from a clean state, the next cycle reports any existing bans
			slog.Warn("Failed to fetch initial ban state", "steam_id", steamID, "error", err)
			break
		}
		if len(players) == 0 || players[0].SteamID != steamID {
			slog.Debug("Steam knows no such profile", "steam_id", steamID)
			return InvalidReference, "", nil
		}
		profile.CommunityBanned = players[0].CommunityBanned
		profile.VACBanned = players[0].VACBanned
		profile.NumberOfVACBans = players[0].NumberOfVACBans
		profile.NumberOfGameBans = players[0].NumberOfGameBans
	default:
		return InvalidReference, "", fmt.Errorf("failed to look up profile: %w", err)
	}

	outcome, err := m.store.RegisterProfile(ctx, profile, subscriberID)
	if err != nil {
		return InvalidReference, "", err
	}

	switch outcome {
	case storage.ProfileCreated:
		slog.Info("Profile added", "steam_id", steamID, "subscriber", subscriberID)
		return Created, steamID, nil
	case storage.SubscriberAdded:
		slog.Info("Subscriber added to profile", "steam_id", steamID, "subscriber", subscriberID)
		return Added, steamID, nil
	default:
		return AlreadyRegistered, steamID, nil
	}
}

// ApproveSubscriber grants access and clears any pending request
func (m *Manager) ApproveSubscriber(ctx context.Context, subscriberID, displayName string) (ApproveResult, error) {
	err := m.store.AddSubscriber(ctx, &storage.Subscriber{SubscriberID: subscriberID, DisplayName: displayName})
	if err != nil && !errors.Is(err, storage.ErrDuplicate) {
		return Approved, fmt.Errorf("failed to add subscriber: %w", err)
	}
	if rmErr := m.store.RemoveAccessRequest(ctx, subscriberID); rmErr != nil {
		slog.Warn("Failed to clear access request", "subscriber", subscriberID, "error", rmErr)
	}
	if err != nil {
		return AlreadyApproved, nil
	}
	slog.Info("Subscriber approved", "subscriber", subscriberID, "name", displayName)
	return Approved, nil
}

// RevokeSubscriber removes access. Revoking an unknown user is not an error.
func (m *Manager) RevokeSubscriber(ctx context.Context, subscriberID string) error {
	if err := m.store.RemoveSubscriber(ctx, subscriberID); err != nil {
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}
	slog.Info("Subscriber revoked", "subscriber", subscriberID)
	return nil
}

// GetSubscriber returns an approved subscriber
func (m *Manager) GetSubscriber(ctx context.Context, subscriberID string) (*storage.Subscriber, error) {
	return m.store.GetSubscriber(ctx, subscriberID)
}

// ListSubscribers returns the given 1-based page of subscribers in approval order
func (m *Manager) ListSubscribers(ctx context.Context, page, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total, err := m.store.CountSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	subs, err := m.store.ListSubscribers(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	return &Page{
		Number:      page,
		Size:        pageSize,
		Total:       total,
		TotalPages:  (total + pageSize - 1) / pageSize,
		Subscribers: subs,
	}, nil
}

// RequestAccess records a pending access request for the admin to decide
func (m *Manager) RequestAccess(ctx context.Context, subscriberID, displayName string) (RequestResult, error) {
	if !m.cfg.AllowRequests {
		return RequestsDisabled, nil
	}
	if m.IsAdmin(subscriberID) {
		return RequestFromAdmin, nil
	}

	ok, err := m.IsAuthorized(ctx, subscriberID)
	if err != nil {
		return RequestSent, err
	}
	if ok {
		return RequestAlreadyApproved, nil
	}

	err = m.store.AddAccessRequest(ctx, &storage.AccessRequest{SubscriberID: subscriberID, DisplayName: displayName})
	if errors.Is(err, storage.ErrDuplicate) {
		return RequestPending, nil
	}
	if err != nil {
		return RequestSent, fmt.Errorf("failed to store access request: %w", err)
	}
	return RequestSent, nil
}

// PendingRequest returns the pending request of a user
func (m *Manager) PendingRequest(ctx context.Context, subscriberID string) (*storage.AccessRequest, error) {
	return m.store.GetAccessRequest(ctx, subscriberID)
}

// DenyRequest drops a pending access request
func (m *Manager) DenyRequest(ctx context.Context, subscriberID string) error {
	return m.store.RemoveAccessRequest(ctx, subscriberID)
}

// Stats returns global and per-user statistics, or nil when no profile is stored
func (m *Manager) Stats(ctx context.Context, subscriberID string) (*Stats, error) {
	raw, err := m.store.Stats(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if raw.ProfileCount == 0 {
		return nil, nil
	}

	stats := &Stats{
		Stats:         *raw,
		Checked:       raw.ProfileCount - raw.BannedProfiles,
		BannedPercent: percent(raw.BannedProfiles, raw.ProfileCount),
	}
	// The admin is not stored as a subscriber
	stats.SubscriberCount++
	stats.UserBannedPercent = percent(raw.UserProfilesBanned, raw.UserProfiles)

	stats.RecentEvents, err = m.store.RecentBanEvents(ctx, subscriberID, RecentEventLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent ban events: %w", err)
	}
	return stats, nil
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (part*100 + total/2) / total
}
