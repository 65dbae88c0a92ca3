package race

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type timerKind string

const (
	kindCountdown timerKind = "countdown"
	kindRaceClock timerKind = "race_clock"
)

type timerKey struct {
	roomID string
	kind   timerKind
}

// TimerEngine owns the scheduled countdown and race-duration timers, at
// most one of each per room. Cancellation is synchronous: Cancel closes
// the stop channel before returning, and any tick already in flight is
// made inert by the room's epoch guard.
type TimerEngine struct {
	clock clockwork.Clock

	mu     sync.Mutex
	active map[timerKey]chan struct{}
}

// NewTimerEngine creates a timer engine. In production pass
// clockwork.NewRealClock(); tests drive time with a FakeClock.
func NewTimerEngine(clock clockwork.Clock) *TimerEngine {
	return &TimerEngine{
		clock:  clock,
		active: make(map[timerKey]chan struct{}),
	}
}

// StartCountdown runs the pre-race countdown for a room. onTick fires once
// per second with the descending count down to 1, onExpire fires when the
// countdown reaches zero. Any countdown already running for the room is
// replaced.
func (e *TimerEngine) StartCountdown(roomID string, from int, onTick func(count int), onExpire func()) {
	e.run(timerKey{roomID: roomID, kind: kindCountdown}, from, onTick, onExpire)
}

// StartRaceClock runs the race-duration timer for a room. onTick fires once
// per second with the remaining whole seconds, onExpire fires at zero.
func (e *TimerEngine) StartRaceClock(roomID string, duration time.Duration, onTick func(remaining int), onExpire func()) {
	e.run(timerKey{roomID: roomID, kind: kindRaceClock}, int(duration/time.Second), onTick, onExpire)
}

func (e *TimerEngine) run(key timerKey, seconds int, onTick func(int), onExpire func()) {
	stop := make(chan struct{})

	// The ticker is registered with the clock before run returns so a
	// caller holding the room lock observes the timer as started.
	ticker := e.clock.NewTicker(time.Second)

	e.mu.Lock()
	if prev, ok := e.active[key]; ok {
		close(prev)
		log.Debug().Str("room_id", key.roomID).Str("kind", string(key.kind)).Msg("replaced active timer")
	}
	e.active[key] = stop
	e.mu.Unlock()

	go func() {
		defer ticker.Stop()

		remaining := seconds
		for {
			select {
			case <-stop:
				log.Debug().Str("room_id", key.roomID).Str("kind", string(key.kind)).Msg("timer cancelled")
				return
			case <-ticker.Chan():
				remaining--
				if remaining > 0 {
					onTick(remaining)
					continue
				}
				e.remove(key, stop)
				onExpire()
				return
			}
		}
	}()

	log.Debug().
		Str("room_id", key.roomID).
		Str("kind", string(key.kind)).
		Int("seconds", seconds).
		Msg("timer started")
}

// remove clears the key only if it still maps to this timer's stop channel,
// so a replacement timer registered meanwhile is left alone.
func (e *TimerEngine) remove(key timerKey, stop chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.active[key]; ok && cur == stop {
		delete(e.active, key)
	}
}

// Cancel stops any active countdown and race-clock timers for the room.
// It does not wait for the timer goroutines to observe the stop; callers
// rely on the room epoch to neutralize a tick already past the select.
func (e *TimerEngine) Cancel(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, kind := range []timerKind{kindCountdown, kindRaceClock} {
		key := timerKey{roomID: roomID, kind: kind}
		if stop, ok := e.active[key]; ok {
			close(stop)
			delete(e.active, key)
			log.Debug().Str("room_id", roomID).Str("kind", string(kind)).Msg("cancelled active timer")
		}
	}
}
