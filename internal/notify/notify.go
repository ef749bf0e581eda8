// Package notify delivers ban alerts to subscribers. Delivery is best effort:
// failures are logged and counted, never retried, and never block the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IceQ1337/SteamBanChecker/internal/metrics"
)

const (
	renderTimeout = 10 * time.Second
	sendTimeout   = 15 * time.Second
)

// Notification is a request to tell a set of subscribers about a ban event
type Notification struct {
	Kind       string
	SteamID    string
	VACBans    int
	GameBans   int
	Recipients []string
}

// Message is the rendered form of a notification
type Message struct {
	Content  string
	Title    string
	URL      string
	ImageURL string
}

// Sender delivers a message to one recipient
type Sender interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

// Renderer turns a notification into a message
type Renderer interface {
	Render(ctx context.Context, n Notification) Message
}

// Dispatcher queues notifications and delivers them on a background worker
type Dispatcher struct {
	sender   Sender
	renderer Renderer
	metrics  *metrics.Metrics

	renderTimeout time.Duration
	sendTimeout   time.Duration // per recipient

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher holding at most queueSize pending notifications
func NewDispatcher(sender Sender, renderer Renderer, queueSize int, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		sender:   sender,
		renderer: renderer,
		metrics:  m,
		queue:    make(chan Notification, queueSize),

		renderTimeout: renderTimeout,
		sendTimeout:   sendTimeout,
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for n := range d.queue {
			d.deliver(n)
		}
	}()
}

// Stop rejects new notifications and waits until queued ones are delivered
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Notify queues n without blocking. It returns false when the notification
// was dropped because the queue is full or the dispatcher is stopped.
func (d *Dispatcher) Notify(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		slog.Warn("Dropping notification, dispatcher stopped", "steam_id", n.SteamID, "kind", n.Kind)
		d.metrics.IncrementNotification("dropped")
		return false
	}

	select {
	case d.queue <- n:
		return true
	default:
		slog.Error("Dropping notification, queue full", "steam_id", n.SteamID, "kind", n.Kind)
		d.metrics.IncrementNotification("dropped")
		return false
	}
}

func (d *Dispatcher) deliver(n Notification) {
	renderCtx, cancel := context.WithTimeout(context.Background(), d.renderTimeout)
	msg := d.renderer.Render(renderCtx, n)
	cancel()

	for _, recipient := range n.Recipients {
		d.send(recipient, n, msg)
	}
}

// send delivers to one recipient under its own deadline
func (d *Dispatcher) send(recipient string, n Notification, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, recipient, msg); err != nil {
		slog.Error("Failed to send notification", "recipient", recipient, "steam_id", n.SteamID, "kind", n.Kind, "error", err)
		d.metrics.IncrementNotification("failed")
		return
	}
	slog.Info("Sent notification", "recipient", recipient, "steam_id", n.SteamID, "kind", n.Kind)
	d.metrics.IncrementNotification("sent")
}
