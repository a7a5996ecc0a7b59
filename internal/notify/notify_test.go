package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []Notification
}

func (c *recordChannel) Name() string { return c.name }

func (c *recordChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *recordChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestDispatcherFansOut(t *testing.T) {
	a := &recordChannel{name: "a"}
	b := &recordChannel{name: "b"}
	d := NewDispatcher(a, b)

	d.Notify(context.Background(), Notification{Title: "t", Urgency: UrgencyInfo})
	d.Flush()

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("deliveries = %d, %d, want 1 each", a.count(), b.count())
	}
}

func TestDispatcherFailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &recordChannel{name: "bad", err: errors.New("down")}
	good := &recordChannel{name: "good"}
	d := NewDispatcher(bad, good)

	d.Notify(context.Background(), Notification{Title: "t", Urgency: UrgencyUrgent})
	d.Flush()

	if good.count() != 1 {
		t.Errorf("good channel deliveries = %d, want 1", good.count())
	}
}

func TestDispatcherRegister(t *testing.T) {
	d := NewDispatcher()
	ch := &recordChannel{name: "late"}
	d.Register(ch)

	d.Notify(context.Background(), Notification{Title: "t"})
	d.Flush()

	if ch.count() != 1 {
		t.Errorf("deliveries = %d, want 1", ch.count())
	}
}

func TestDispatcherSurvivesCancelledContext(t *testing.T) {
	ch := &recordChannel{name: "a"}
	d := NewDispatcher(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, Notification{Title: "t"})
	d.Flush()

	// Delivery is detached from the caller's context.
	if ch.count() != 1 {
		t.Errorf("deliveries = %d, want 1", ch.count())
	}
}
