// Package notify delivers operator notifications for run lifecycle and
// autopilot events. Delivery is fire-and-forget: a slow or failing
// channel never blocks or fails the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/holdinghq/hq/internal/logging"
)

// Urgency classifies how loudly a notification should be surfaced.
type Urgency string

const (
	UrgencyInfo    Urgency = "info"
	UrgencyWarning Urgency = "warning"
	UrgencyUrgent  Urgency = "urgent"
)

// Notification is one operator-facing message.
type Notification struct {
	Title   string  `json:"title"`
	Message string  `json:"message"`
	Urgency Urgency `json:"urgency"`
}

// Notifier is the sink interface core components depend on.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Channel delivers notifications to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// sendTimeout bounds each channel delivery so a hung destination cannot
// leak goroutines indefinitely.
const sendTimeout = 10 * time.Second

// Dispatcher fans notifications out to all registered channels.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []Channel
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		log:      logging.WithComponent("notify"),
	}
}

// Register adds a channel to the dispatcher.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Notify delivers the notification to every channel asynchronously.
// Failures are logged and dropped.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.mu.RLock()
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	for _, ch := range channels {
		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()
			if err := ch.Send(sendCtx, n); err != nil {
				d.log.Warn("notification delivery failed",
					"channel", ch.Name(),
					"title", n.Title,
					"error", err,
				)
			}
		}(ch)
	}
}

// Flush waits for in-flight deliveries to finish. Used in tests and on
// shutdown.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

// LogChannel writes notifications to the structured log. Always
// registered so notifications are never silently lost.
type LogChannel struct {
	log *slog.Logger
}

// NewLogChannel creates a log-backed channel.
func NewLogChannel() *LogChannel {
	return &LogChannel{log: logging.WithComponent("notify")}
}

// Name returns the channel identifier.
func (c *LogChannel) Name() string { return "log" }

// Send writes the notification to the log at a level matching urgency.
func (c *LogChannel) Send(_ context.Context, n Notification) error {
	switch n.Urgency {
	case UrgencyUrgent:
		c.log.Error(n.Title, "message", n.Message, "urgency", n.Urgency)
	case UrgencyWarning:
		c.log.Warn(n.Title, "message", n.Message, "urgency", n.Urgency)
	default:
		c.log.Info(n.Title, "message", n.Message, "urgency", n.Urgency)
	}
	return nil
}
