package race_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/raceloop/typerace/go/internal/events"
	"github.com/raceloop/typerace/go/internal/race"
)

// recordingBroadcaster captures every event the engine emits, in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*events.Event
}

func (b *recordingBroadcaster) BroadcastToRoom(roomID string, ev *events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBroadcaster) all() []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*events.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroadcaster) countOf(eventType events.EventType) int {
	count := 0
	for _, ev := range b.all() {
		if ev.Type == eventType {
			count++
		}
	}
	return count
}

func (b *recordingBroadcaster) lastOf(eventType events.EventType) *events.Event {
	var last *events.Event
	for _, ev := range b.all() {
		if ev.Type == eventType {
			last = ev
		}
	}
	return last
}

// stubProvider returns a fixed prompt and counts fetches. An optional
// delay simulates remote latency for creation-race tests.
type stubProvider struct {
	prompt string
	delay  time.Duration
	calls  atomic.Int32
}

func (s *stubProvider) Fetch(ctx context.Context, mode race.Mode) string {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.prompt
}

func decodePayload[T any](t *testing.T, ev *events.Event) T {
	t.Helper()
	require.NotNil(t, ev)
	var payload T
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}

func waitForCount(t *testing.T, bc *recordingBroadcaster, eventType events.EventType, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bc.countOf(eventType) >= want
	}, 2*time.Second, 5*time.Millisecond, "expected %d %s events, got %d", want, eventType, bc.countOf(eventType))
}

// runCountdown drives the fake clock through a full 5-second countdown,
// waiting for each tick so none are dropped, and returns once the race
// has started.
func runCountdown(t *testing.T, clock *clockwork.FakeClock, bc *recordingBroadcaster) {
	t.Helper()
	waitForCount(t, bc, events.EventTypeCountdownTick, 1)
	for i := 1; i <= 4; i++ {
		clock.Advance(time.Second)
		waitForCount(t, bc, events.EventTypeCountdownTick, 1+i)
	}
	clock.Advance(time.Second)
	waitForCount(t, bc, events.EventTypeGameStart, 1)
}
