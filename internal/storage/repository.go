package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serialize everything through one connection
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id VARCHAR(20) UNIQUE NOT NULL,
			community_banned INTEGER NOT NULL DEFAULT 0,
			vac_banned INTEGER NOT NULL DEFAULT 0,
			vac_ban_count INTEGER NOT NULL DEFAULT 0,
			game_ban_count INTEGER NOT NULL DEFAULT 0,
			tracked INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS profile_subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id VARCHAR(20) NOT NULL,
			subscriber_id VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (steam_id) REFERENCES profiles(steam_id),
			UNIQUE(steam_id, subscriber_id)
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subscriber_id VARCHAR(20) UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS access_requests (
			subscriber_id VARCHAR(20) PRIMARY KEY,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			requested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ban_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			steam_id VARCHAR(20) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			detected_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_tracked ON profiles(tracked)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_subscribers_subscriber ON profile_subscribers(subscriber_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ban_events_steam_id ON ban_events(steam_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Profile operations

// RegisterProfile inserts the profile if its Steam ID is new and adds the
// subscriber to its subscriber set. Both inserts run in one transaction and
// ignore conflicts, so concurrent registrations of the same ID converge.
func (r *Repository) RegisterProfile(ctx context.Context, p *Profile, subscriberID string) (RegisterOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (steam_id, community_banned, vac_banned, vac_ban_count, game_ban_count, tracked)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(steam_id) DO NOTHING`,
		p.SteamID, p.CommunityBanned, p.VACBanned, p.NumberOfVACBans, p.NumberOfGameBans, p.Tracked,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert profile: %w", err)
	}
	created, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO profile_subscribers (steam_id, subscriber_id) VALUES (?, ?)
		 ON CONFLICT(steam_id, subscriber_id) DO NOTHING`,
		p.SteamID, subscriberID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add profile subscriber: %w", err)
	}
	added, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit registration: %w", err)
	}

	switch {
	case created == 1:
		return ProfileCreated, nil
	case added == 1:
		return SubscriberAdded, nil
	default:
		return AlreadySubscribed, nil
	}
}

// GetProfile finds a profile by Steam ID, including its subscribers
func (r *Repository) GetProfile(ctx context.Context, steamID string) (*Profile, error) {
	p := &Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT steam_id, community_banned, vac_banned, vac_ban_count, game_ban_count, tracked, created_at, updated_at
		 FROM profiles WHERE steam_id = ?`,
		steamID,
	).Scan(&p.SteamID, &p.CommunityBanned, &p.VACBanned, &p.NumberOfVACBans, &p.NumberOfGameBans, &p.Tracked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", steamID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	subs, err := r.profileSubscribers(ctx, steamID)
	if err != nil {
		return nil, err
	}
	p.Subscribers = subs
	return p, nil
}

func (r *Repository) profileSubscribers(ctx context.Context, steamID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subscriber_id FROM profile_subscribers WHERE steam_id = ? ORDER BY id`,
		steamID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		subs = append(subs, id)
	}
	return subs, rows.Err()
}

// TrackedSteamIDs returns the Steam IDs of all profiles still being checked, in insertion order
func (r *Repository) TrackedSteamIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT steam_id FROM profiles WHERE tracked = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateBanState writes the ban fields and tracking flag of a profile and
// records the detected events. The update only applies while the stored ban
// fields still equal prev; it reports false when another writer got there first.
// The subscriber set is never touched.
func (r *Repository) UpdateBanState(ctx context.Context, steamID string, prev, next BanState, tracked bool, events []string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE profiles
		 SET community_banned = ?, vac_banned = ?, vac_ban_count = ?, game_ban_count = ?, tracked = ?, updated_at = ?
		 WHERE steam_id = ?
		   AND community_banned = ? AND vac_banned = ? AND vac_ban_count = ? AND game_ban_count = ?`,
		next.CommunityBanned, next.VACBanned, next.NumberOfVACBans, next.NumberOfGameBans, tracked, at,
		steamID,
		prev.CommunityBanned, prev.VACBanned, prev.NumberOfVACBans, prev.NumberOfGameBans,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, kind := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ban_events (steam_id, kind, detected_at) VALUES (?, ?, ?)`,
			steamID, kind, at,
		); err != nil {
			return false, fmt.Errorf("failed to record ban event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ban state: %w", err)
	}
	return true, nil
}

// RecentBanEvents returns up to limit ban events on profiles the subscriber
// follows, newest first
func (r *Repository) RecentBanEvents(ctx context.Context, subscriberID string, limit int) ([]*BanEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.steam_id, e.kind, e.detected_at
		 FROM ban_events e
		 JOIN profile_subscribers ps ON ps.steam_id = e.steam_id
		 WHERE ps.subscriber_id = ?
		 ORDER BY e.id DESC
		 LIMIT ?`,
		subscriberID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*BanEvent
	for rows.Next() {
		e := &BanEvent{}
		if err := rows.Scan(&e.ID, &e.SteamID, &e.Kind, &e.DetectedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountProfiles returns the number of stored profiles
func (r *Repository) CountProfiles(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}

// Stats returns global and per-subscriber profile counts. Untracked profiles count as banned.
func (r *Repository) Stats(ctx context.Context, subscriberID string) (*Stats, error) {
	stats := &Stats{}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN tracked = 0 THEN 1 ELSE 0 END), 0) FROM profiles`,
	).Scan(&stats.ProfileCount, &stats.BannedProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN p.tracked = 0 THEN 1 ELSE 0 END), 0)
		 FROM profiles p
		 JOIN profile_subscribers ps ON ps.steam_id = p.steam_id
		 WHERE ps.subscriber_id = ?`,
		subscriberID,
	).Scan(&stats.UserProfiles, &stats.UserProfilesBanned)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriber profiles: %w", err)
	}

	stats.SubscriberCount, err = r.CountSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Subscriber operations

// AddSubscriber inserts an approved subscriber. Returns ErrDuplicate if the ID already exists.
func (r *Repository) AddSubscriber(ctx context.Context, s *Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (subscriber_id, display_name) VALUES (?, ?)`,
		s.SubscriberID, s.DisplayName,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("subscriber %s: %w", s.SubscriberID, ErrDuplicate)
	}
	return err
}

// RemoveSubscriber deletes a subscriber. Removing an unknown ID is not an error.
func (r *Repository) RemoveSubscriber(ctx context.Context, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE subscriber_id = ?`, subscriberID)
	return err
}

// GetSubscriber finds a subscriber by ID
func (r *Repository) GetSubscriber(ctx context.Context, subscriberID string) (*Subscriber, error) {
	s := &Subscriber{}
	err := r.db.QueryRowContext(ctx,
		`SELECT subscriber_id, display_name, created_at FROM subscribers WHERE subscriber_id = ?`,
		subscriberID,
	).Scan(&s.SubscriberID, &s.DisplayName, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscriber %s: %w", subscriberID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubscribers returns up to limit subscribers in insertion order, skipping offset
func (r *Repository) ListSubscribers(ctx context.Context, offset, limit int) ([]*Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subscriber_id, display_name, created_at FROM subscribers ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		s := &Subscriber{}
		if err := rows.Scan(&s.SubscriberID, &s.DisplayName, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CountSubscribers returns the number of approved subscribers
func (r *Repository) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}

// Access request operations

// AddAccessRequest stores a pending request. Returns ErrDuplicate if one is already pending.
func (r *Repository) AddAccessRequest(ctx context.Context, req *AccessRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_requests (subscriber_id, display_name) VALUES (?, ?)`,
		req.SubscriberID, req.DisplayName,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("access request %s: %w", req.SubscriberID, ErrDuplicate)
	}
	return err
}

// GetAccessRequest finds a pending request by subscriber ID
func (r *Repository) GetAccessRequest(ctx context.Context, subscriberID string) (*AccessRequest, error) {
	req := &AccessRequest{}
	err := r.db.QueryRowContext(ctx,
		`SELECT subscriber_id, display_name, requested_at FROM access_requests WHERE subscriber_id = ?`,
		subscriberID,
	).Scan(&req.SubscriberID, &req.DisplayName, &req.RequestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("access request %s: %w", subscriberID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RemoveAccessRequest deletes a pending request, if any
func (r *Repository) RemoveAccessRequest(ctx context.Context, subscriberID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM access_requests WHERE subscriber_id = ?`, subscriberID)
	return err
}
