package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IceQ1337/SteamBanChecker/internal/notify"
	"github.com/IceQ1337/SteamBanChecker/internal/steam"
	"github.com/IceQ1337/SteamBanChecker/internal/storage"
)

// memStore is an in-memory ProfileStore that counts writes
type memStore struct {
	mu        sync.Mutex
	order     []string
	profiles  map[string]*storage.Profile
	writes    int
	readErr   error
	updateErr error
	// mutate runs inside GetProfile after the copy is taken, simulating a concurrent writer
	mutate func(p *storage.Profile)
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*storage.Profile)}
}

func (m *memStore) add(p storage.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.profiles[p.SteamID] = &cp
	m.order = append(m.order, p.SteamID)
}

func (m *memStore) get(steamID string) storage.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.profiles[steamID]
}

func (m *memStore) TrackedSteamIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var ids []string
	for _, id := range m.order {
		if m.profiles[id].Tracked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) GetProfile(ctx context.Context, steamID string) (*storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[steamID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	cp.Subscribers = slices.Clone(p.Subscribers)
	if m.mutate != nil {
		m.mutate(p)
	}
	return &cp, nil
}

func (m *memStore) UpdateBanState(ctx context.Context, steamID string, prev, next storage.BanState, tracked bool, events []string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return false, m.updateErr
	}
	p, ok := m.profiles[steamID]
	if !ok || p.State() != prev {
		return false, nil
	}
	p.CommunityBanned = next.CommunityBanned
	p.VACBanned = next.VACBanned
	p.NumberOfVACBans = next.NumberOfVACBans
	p.NumberOfGameBans = next.NumberOfGameBans
	p.Tracked = tracked
	m.writes++
	return true, nil
}

// fakeSteam serves player records and fails any batch containing a poisoned ID
type fakeSteam struct {
	mu      sync.Mutex
	players map[string]steam.PlayerBans
	extra   []steam.PlayerBans
	poison  map[string]bool
	calls   int
	block   chan struct{}
	entered chan struct{}
	panics  bool
}

func newFakeSteam() *fakeSteam {
	return &fakeSteam{players: make(map[string]steam.PlayerBans), poison: make(map[string]bool)}
}

func (f *fakeSteam) set(p steam.PlayerBans) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[p.SteamID] = p
}

func (f *fakeSteam) GetPlayerBans(ctx context.Context, steamIDs []string) ([]steam.PlayerBans, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("boom")
	}
	var out []steam.PlayerBans
	for _, id := range steamIDs {
		if f.poison[id] {
			return nil, &steam.FetchError{Op: "GetPlayerBans", Err: errors.New("connection reset")}
		}
		if p, ok := f.players[id]; ok {
			out = append(out, p)
		}
	}
	return append(out, f.extra...), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return true
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

func tracked(id string, subs ...string) storage.Profile {
	return storage.Profile{SteamID: id, Tracked: true, Subscribers: subs}
}

func TestRunCycleVACBanEndToEnd(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", VACBanned: true, NumberOfVACBans: 1})
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{}).RunCycle(context.Background())

	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.CycleID)
	assert.Equal(t, 1, res.Events)
	p := store.get("A")
	assert.True(t, p.VACBanned)
	assert.Equal(t, 1, p.NumberOfVACBans)
	assert.False(t, p.Tracked)
	assert.Equal(t, []notify.Notification{{
		Kind:       string(VACBanStarted),
		SteamID:    "A",
		VACBans:    1,
		Recipients: []string{"u1"},
	}}, notifier.all())
}

func TestRunCycleIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1", "u2"))
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", CommunityBanned: true})
	notifier := &recordingNotifier{}
	engine := New(store, api, notifier, Options{})

	first := engine.RunCycle(context.Background())
	assert.Equal(t, 1, first.Writes)
	assert.True(t, store.get("A").Tracked, "community ban keeps tracking by default")

	second := engine.RunCycle(context.Background())
	assert.Zero(t, second.Events)
	assert.Zero(t, second.Writes)
	assert.Equal(t, 1, store.writes)
	assert.Len(t, notifier.all(), 1)
	assert.Equal(t, 2, api.calls)
}

func TestRunCycleBatchIsolation(t *testing.T) {
	store := newMemStore()
	api := newFakeSteam()
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("%03d", i)
		store.add(tracked(id, "u1"))
		api.set(steam.PlayerBans{SteamID: id, NumberOfGameBans: 1})
	}
	api.poison["150"] = true // second batch
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{Concurrency: 3}).RunCycle(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, 150, res.Writes)
	assert.Len(t, notifier.all(), 150)
	assert.True(t, store.get("100").Tracked, "failed batch is untouched")
	assert.False(t, store.get("099").Tracked)
	assert.False(t, store.get("249").Tracked)
}

func TestRunCycleCountDecreaseIsIgnored(t *testing.T) {
	store := newMemStore()
	p := tracked("A", "u1")
	p.VACBanned = true
	p.NumberOfVACBans = 2
	store.add(p)
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", VACBanned: true, NumberOfVACBans: 1})
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{}).RunCycle(context.Background())

	assert.Equal(t, 1, res.Anomalies)
	assert.Zero(t, res.Events)
	assert.Zero(t, store.writes)
	assert.Empty(t, notifier.all())
}

func TestRunCycleCountDecreaseDoesNotHideOtherBans(t *testing.T) {
	store := newMemStore()
	p := tracked("A", "u1")
	p.NumberOfGameBans = 1
	store.add(p)
	api := newFakeSteam()
	// Game ban reversed, VAC ban issued
	api.set(steam.PlayerBans{SteamID: "A", VACBanned: true, NumberOfVACBans: 1})
	notifier := &recordingNotifier{}
	engine := New(store, api, notifier, Options{Policy: StopPolicy{}})

	res := engine.RunCycle(context.Background())

	assert.Equal(t, 1, res.Anomalies)
	assert.Equal(t, 1, res.Events)
	assert.Equal(t, 1, res.Writes)
	require.Len(t, notifier.all(), 1)
	assert.Equal(t, string(VACBanStarted), notifier.all()[0].Kind)
	assert.Equal(t, 1, notifier.all()[0].GameBans)

	stored := store.get("A")
	assert.True(t, stored.VACBanned)
	assert.Equal(t, 1, stored.NumberOfVACBans)
	assert.Equal(t, 1, stored.NumberOfGameBans, "game count is not lowered")

	// Later cycles only report the anomaly again
	res = engine.RunCycle(context.Background())
	assert.Zero(t, res.Events)
	assert.Equal(t, 1, store.writes)
	assert.Len(t, notifier.all(), 1)
}

func TestRunCycleUnknownIdentity(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", NumberOfGameBans: 1})
	api.extra = []steam.PlayerBans{{SteamID: "ghost", VACBanned: true, NumberOfVACBans: 1}}
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{}).RunCycle(context.Background())

	assert.Equal(t, 1, res.Anomalies)
	assert.Equal(t, 1, res.Events)
	require.Len(t, notifier.all(), 1)
	assert.Equal(t, string(GameBanStarted), notifier.all()[0].Kind)
}

func TestRunCycleDuplicateRecordsNotifyOnce(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", CommunityBanned: true})
	api.extra = []steam.PlayerBans{{SteamID: "A", CommunityBanned: true}}
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{}).RunCycle(context.Background())

	assert.Equal(t, 1, res.Events)
	assert.Len(t, notifier.all(), 1)
}

func TestRunCycleStopPolicy(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", CommunityBanned: true})

	New(store, api, &recordingNotifier{}, Options{Policy: DefaultStopPolicy(true)}).RunCycle(context.Background())

	assert.False(t, store.get("A").Tracked)
}

func TestRunCyclePersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	store.updateErr = errors.New("disk I/O error")
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", VACBanned: true, NumberOfVACBans: 1})
	notifier := &recordingNotifier{}
	engine := New(store, api, notifier, Options{})

	res := engine.RunCycle(context.Background())
	assert.Equal(t, 1, res.Anomalies)
	assert.Empty(t, notifier.all(), "no notification without persisted state")

	store.updateErr = nil
	res = engine.RunCycle(context.Background())
	assert.Equal(t, 1, res.Events, "next cycle re-derives the event")
	assert.Len(t, notifier.all(), 1)
}

func TestRunCycleStaleProfile(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	store.mutate = func(p *storage.Profile) { p.NumberOfGameBans = 1 }
	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", NumberOfGameBans: 1})
	notifier := &recordingNotifier{}

	res := New(store, api, notifier, Options{}).RunCycle(context.Background())

	assert.Equal(t, 1, res.Anomalies)
	assert.Zero(t, res.Writes)
	assert.Empty(t, notifier.all())
}

func TestRunCycleReadFailure(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("database is locked")
	api := newFakeSteam()

	res := New(store, api, &recordingNotifier{}, Options{}).RunCycle(context.Background())

	assert.Error(t, res.Err)
	assert.Zero(t, api.calls)
}

func TestRunCycleNoProfiles(t *testing.T) {
	api := newFakeSteam()
	res := New(newMemStore(), api, &recordingNotifier{}, Options{}).RunCycle(context.Background())
	assert.NoError(t, res.Err)
	assert.Zero(t, res.Batches)
	assert.Zero(t, api.calls)
}

func TestRunCycleRecoversFromPanic(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.panics = true

	res := New(store, api, &recordingNotifier{}, Options{}).RunCycle(context.Background())

	assert.Equal(t, 1, res.FailedBatches)
}

func TestRunCycleIsNotReentrant(t *testing.T) {
	store := newMemStore()
	store.add(tracked("A", "u1"))
	api := newFakeSteam()
	api.block = make(chan struct{})
	api.entered = make(chan struct{}, 1)
	engine := New(store, api, &recordingNotifier{}, Options{})

	done := make(chan Result)
	go func() { done <- engine.RunCycle(context.Background()) }()
	<-api.entered

	res := engine.RunCycle(context.Background())
	assert.ErrorIs(t, res.Err, ErrCycleInProgress)

	close(api.block)
	first := <-done
	assert.NoError(t, first.Err)

	api.block = nil
	assert.NoError(t, engine.RunCycle(context.Background()).Err)
}

func TestRunCycleWithRepository(t *testing.T) {
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	_, err = repo.RegisterProfile(ctx, &storage.Profile{SteamID: "A", Tracked: true}, "u1")
	require.NoError(t, err)

	api := newFakeSteam()
	api.set(steam.PlayerBans{SteamID: "A", VACBanned: true, NumberOfVACBans: 1})
	notifier := &recordingNotifier{}

	res := New(repo, api, notifier, Options{}).RunCycle(ctx)
	require.NoError(t, res.Err)

	p, err := repo.GetProfile(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, storage.BanState{VACBanned: true, NumberOfVACBans: 1}, p.State())
	assert.False(t, p.Tracked)
	assert.Equal(t, []string{"u1"}, p.Subscribers)

	events, err := repo.RecentBanEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(VACBanStarted), events[0].Kind)

	require.Len(t, notifier.all(), 1)
	assert.Equal(t, []string{"u1"}, notifier.all()[0].Recipients)
}
