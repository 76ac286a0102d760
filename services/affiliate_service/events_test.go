package affiliate_service

import (
	"context"
	"sync"
	"testing"
	"time"

	"nasa-go-affiliate/pkg/goroutinepool"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	p.got <- struct{}{}
	return nil
}

func TestEventPriorities(t *testing.T) {
	require.Equal(t, goroutinepool.PriorityHigh, eventPriority(EventCommissionCredited))
	require.Equal(t, goroutinepool.PriorityHigh, eventPriority(EventCommissionPaid))
	require.Equal(t, goroutinepool.PriorityNormal, eventPriority(EventOrderCreated))
	require.Equal(t, goroutinepool.PriorityLow, eventPriority(EventShareRecorded))
	require.Equal(t, goroutinepool.PriorityNormal, eventPriority("unknown.event"))
}

func TestEventDispatcherDeliversThroughPool(t *testing.T) {
	pool := goroutinepool.NewPool(1, 10)
	pool.Start()
	defer pool.Stop()

	pub := &recordingPublisher{got: make(chan struct{}, 2)}
	d := NewEventDispatcher(pub, pool)

	d.Publish(Event{Type: EventShareRecorded, AffiliateID: 7})
	d.Publish(Event{Type: EventCommissionPaid, AffiliateID: 7})

	for i := 0; i < 2; i++ {
		select {
		case <-pub.got:
		case <-time.After(5 * time.Second):
			t.Fatal("event not delivered")
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	for _, e := range pub.events {
		require.NotEmpty(t, e.ID)
		require.False(t, e.OccurredAt.IsZero())
		require.Equal(t, 7, e.AffiliateID)
	}

	// nil 接收者什么都不做
	var none *EventDispatcher
	none.Publish(Event{Type: EventOrderCreated})
}
