// Package reconcile compares the stored ban state of tracked Steam profiles
// with the current state reported by Steam, persists transitions and
// requests notifications for them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IceQ1337/SteamBanChecker/internal/metrics"
	"github.com/IceQ1337/SteamBanChecker/internal/notify"
	"github.com/IceQ1337/SteamBanChecker/internal/steam"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

// ErrCycleInProgress is reported when a cycle is triggered while another one runs
var ErrCycleInProgress = errors.New("ban check cycle already in progress")

// ProfileStore is the part of the record store the engine needs
type ProfileStore interface {
	TrackedSteamIDs(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, steamID string) (*storage.Profile, error)
	UpdateBanState(ctx context.Context, steamID string, prev, next storage.BanState, tracked bool, events []string, at time.Time) (bool, error)
}

// BanFetcher returns the current ban state of a batch of Steam IDs
type BanFetcher interface {
	GetPlayerBans(ctx context.Context, steamIDs []string) ([]steam.PlayerBans, error)
}

// Notifier accepts notifications without blocking
type Notifier interface {
	Notify(n notify.Notification) bool
}

// Options tune a ban check cycle
type Options struct {
	Policy       StopPolicy
	BatchSize    int
	Concurrency  int
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Result summarizes one cycle
type Result struct {
	CycleID       string
	Profiles      int
	Batches       int
	FailedBatches int
	Events        int
	Writes        int
	Anomalies     int
	Err           error
}

// Engine runs ban check cycles. At most one cycle runs at a time.
type Engine struct {
	store    ProfileStore
	fetcher  BanFetcher
	notifier Notifier
	opts     Options

	running sync.Mutex
}

// New creates an engine. Zero option values fall back to defaults.
func New(store ProfileStore, fetcher BanFetcher, notifier Notifier, opts Options) *Engine {
	if opts.Policy == nil {
		opts.Policy = DefaultStopPolicy(false)
	}
	if opts.BatchSize <= 0 || opts.BatchSize > steam.MaxBatchSize {
		opts.BatchSize = steam.MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		opts:     opts,
	}
}

// tally collects per-cycle counters from concurrent batches
type tally struct {
	mu sync.Mutex
	Result
}

func (t *tally) add(fn func(r *Result)) {
	t.mu.Lock()
	fn(&t.Result)
	t.mu.Unlock()
}

// RunCycle checks every tracked profile once. Failures of single batches or
// records are logged and skipped; the cycle always completes. If another
// cycle is still running the call returns immediately with ErrCycleInProgress.
func (e *Engine) RunCycle(ctx context.Context) Result {
	if !e.running.TryLock() {
		slog.Debug("Skipping ban check, previous cycle still running")
		e.opts.Metrics.IncrementCycle("skipped")
		return Result{Err: ErrCycleInProgress}
	}
	defer e.running.Unlock()

	start := time.Now()
	t := &tally{}
	t.CycleID = uuid.NewString()
	log := slog.With("cycle_id", t.CycleID)

	steamIDs, err := e.store.TrackedSteamIDs(ctx)
	if err != nil {
		log.Error("Failed to get tracked profiles", "error", err)
		e.opts.Metrics.IncrementCycle("failed")
		t.Err = fmt.Errorf("failed to get tracked profiles: %w", err)
		return t.Result
	}
	steamIDs = dedupe(steamIDs)
	t.Profiles = len(steamIDs)
	e.opts.Metrics.SetTrackedProfiles(len(steamIDs))

	if len(steamIDs) == 0 {
		log.Debug("No profiles to check")
		e.opts.Metrics.IncrementCycle("completed")
		return t.Result
	}

	batches := Chunk(steamIDs, e.opts.BatchSize)
	t.Batches = len(batches)
	log.Info("Checking profiles", "count", len(steamIDs), "batches", len(batches))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			e.runBatch(ctx, log.With("batch", i), batch, t)
			return nil
		})
	}
	_ = g.Wait()

	e.opts.Metrics.IncrementCycle("completed")
	e.opts.Metrics.ObserveCycleDuration(time.Since(start))
	log.Info("Ban check finished",
		"profiles", t.Profiles,
		"failed_batches", t.FailedBatches,
		"events", t.Events,
		"anomalies", t.Anomalies,
		"duration", time.Since(start),
	)
	return t.Result
}

// runBatch fetches and reconciles one batch. It never panics.
func (e *Engine) runBatch(ctx context.Context, log *slog.Logger, steamIDs []string, t *tally) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic in batch", "panic", r)
			t.add(func(res *Result) { res.FailedBatches++ })
			e.opts.Metrics.IncrementBatch("failed")
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	players, err := e.fetcher.GetPlayerBans(fetchCtx, steamIDs)
	cancel()
	if err != nil {
		log.Error("Failed to fetch player bans, skipping batch", "size", len(steamIDs), "error", err)
		t.add(func(res *Result) { res.FailedBatches++ })
		e.opts.Metrics.IncrementBatch("failed")
		return
	}
	e.opts.Metrics.IncrementBatch("ok")

	for _, player := range players {
		if ctx.Err() != nil {
			return
		}
		e.reconcile(ctx, log, player, t)
	}
}

// reconcile applies the current state of one player to its stored profile
func (e *Engine) reconcile(ctx context.Context, log *slog.Logger, player steam.PlayerBans, t *tally) {
	log = log.With("steam_id", player.SteamID)

	profile, err := e.store.GetProfile(ctx, player.SteamID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("Steam returned a profile that is not stored", "error", ErrUnknownIdentity)
		e.anomaly(t, "unknown_identity")
		return
	}
	if err != nil {
		log.Error("Failed to load profile", "error", err)
		e.anomaly(t, "store_error")
		return
	}

	current := storage.BanState{
		CommunityBanned:  player.CommunityBanned,
		VACBanned:        player.VACBanned,
		NumberOfVACBans:  player.NumberOfVACBans,
		NumberOfGameBans: player.NumberOfGameBans,
	}
	stored := profile.State()

	events, next, err := Classify(stored, current)
	if err != nil {
		log.Warn("Keeping stored ban count", "error", err)
		e.anomaly(t, "count_decreased")
	}
	if len(events) == 0 {
		return
	}

	tracked := profile.Tracked && !e.opts.Policy.StopsTracking(events)
	ok, err := e.store.UpdateBanState(ctx, player.SteamID, stored, next, tracked, kindStrings(events), e.opts.Now())
	if err != nil {
		// Stored state is unchanged, so the next cycle detects the same events again
		log.Error("Failed to persist ban state", "events", events, "error", err)
		e.anomaly(t, "store_error")
		return
	}
	if !ok {
		log.Warn("Profile changed while checking, will retry next cycle", "events", events)
		e.anomaly(t, "stale")
		return
	}

	t.add(func(res *Result) {
		res.Writes++
		res.Events += len(events)
	})
	for _, kind := range events {
		log.Info("Ban detected", "kind", kind, "tracked", tracked, "subscribers", len(profile.Subscribers))
		e.opts.Metrics.IncrementEvent(string(kind))
		e.notifier.Notify(notify.Notification{
			Kind:       string(kind),
			SteamID:    player.SteamID,
			VACBans:    next.NumberOfVACBans,
			GameBans:   next.NumberOfGameBans,
			Recipients: profile.Subscribers,
		})
	}
}

func (e *Engine) anomaly(t *tally, reason string) {
	t.add(func(res *Result) { res.Anomalies++ })
	e.opts.Metrics.IncrementAnomaly(reason)
}

// Chunk splits ids into ordered batches of at most size elements
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
