package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IceQ1337/SteamBanChecker/internal/reconcile"
)

// Cycler runs one ban check cycle
type Cycler interface {
	RunCycle(ctx context.Context) reconcile.Result
}

// Poller periodically runs ban check cycles
type Poller struct {
	cycler   Cycler
	interval time.Duration

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New creates a new Poller
func New(cycler Cycler, interval time.Duration) *Poller {
	return &Poller{
		cycler:   cycler,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop and blocks until the context is cancelled or Stop is called
func (p *Poller) Start(ctx context.Context) {
	// Registering under mu orders Add before any Wait in Stop
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	slog.Info("Starting poller", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial poll
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller stopped (context cancelled)")
			return
		case <-p.stopChan:
			slog.Info("Poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.trigger:
			slog.Info("Running requested ban check")
			p.poll(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// Trigger requests an immediate cycle. Requests made while one is already
// pending are coalesced into it.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop signals the poller to stop and waits for the running cycle to finish.
// A Start that has not begun yet returns without running a cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.mu.Unlock()
	p.wg.Wait()
}

// poll runs one cycle. The engine never panics past RunCycle, so the next tick always comes.
func (p *Poller) poll(ctx context.Context) {
	res := p.cycler.RunCycle(ctx)
	if res.Err != nil {
		slog.Warn("Ban check cycle did not complete", "cycle_id", res.CycleID, "error", res.Err)
	}
}
