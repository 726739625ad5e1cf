package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/splitfair/splitfair/internal/domain/subscription"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
	"go.uber.org/zap"
)

// NewTestLogger returns a silent logger for tests
func NewTestLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// FakeClock is a settable clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) SetNow(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

// FakeSleeper records requested pauses without blocking
type FakeSleeper struct {
	mu     sync.Mutex
	Sleeps []time.Duration
}

func (s *FakeSleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sleeps = append(s.Sleeps, d)
}

// DispatchedEvent is one recorded notification
type DispatchedEvent struct {
	EventType      types.HistoryEventType
	SubscriptionID string
	OwnerID        string
	Status         types.SubscriptionStatus
}

// FakeDispatcher records every dispatched notification
type FakeDispatcher struct {
	mu     sync.Mutex
	Events []DispatchedEvent
}

func NewFakeDispatcher() *FakeDispatcher {
	return &FakeDispatcher{}
}

func (d *FakeDispatcher) Dispatch(_ context.Context, eventType types.HistoryEventType, sub *subscription.Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Events = append(d.Events, DispatchedEvent{
		EventType:      eventType,
		SubscriptionID: sub.ID,
		OwnerID:        sub.OwnerID,
		Status:         sub.SubscriptionStatus,
	})
}

func (d *FakeDispatcher) Close() error { return nil }

// Dispatched returns a snapshot of recorded events
func (d *FakeDispatcher) Dispatched() []DispatchedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]DispatchedEvent, len(d.Events))
	copy(result, d.Events)
	return result
}
