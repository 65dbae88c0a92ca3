package race

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/raceloop/typerace/go/internal/events"
)

// Broadcaster fans an event out to every connection subscribed to a room.
// Implementations must deliver events for one room in the order they were
// produced.
type Broadcaster interface {
	BroadcastToRoom(roomID string, event *events.Event)
}

// errRoomClosed is returned by Join when the room was torn down between
// registry resolution and the join itself. The caller re-resolves.
var errRoomClosed = errors.New("room closed")

// Room is one race session. Every mutation of its state runs under mu, so
// a room behaves as a single-writer actor while distinct rooms proceed in
// parallel. Broadcasts are emitted inside the critical section to keep
// their order identical to the mutation order.
type Room struct {
	id        string
	broadcast Broadcaster
	timers    *TimerEngine
	clock     clockwork.Clock

	mu            sync.Mutex
	mode          Mode
	prompt        string
	state         State
	hostID        string
	epoch         uint64
	participants  []*Participant // join order
	startedAt     time.Time
	closed        bool
	countdownFrom int
}

func newRoom(id string, mode Mode, prompt string, broadcast Broadcaster, timers *TimerEngine, clock clockwork.Clock, countdownFrom int) *Room {
	return &Room{
		id:            id,
		broadcast:     broadcast,
		timers:        timers,
		clock:         clock,
		mode:          mode,
		prompt:        prompt,
		state:         StateWaiting,
		countdownFrom: countdownFrom,
	}
}

// ID returns the opaque room identifier.
func (r *Room) ID() string {
	return r.id
}

// Mode returns the room's race-length preset.
func (r *Room) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// IsHost reports whether the connection currently holds host authority.
func (r *Room) IsHost(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return connID == r.hostID
}

// Join adds a participant under the given name, or resynchronizes an
// already-present name without touching the roster. The first join becomes
// host. The current state is always broadcast so the joiner catches up
// with an in-progress race.
func (r *Room) Join(connID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRoomClosed
	}

	if existing := r.findByName(name); existing == nil {
		p := &Participant{ID: connID, Name: name, JoinedAt: r.clock.Now()}
		r.participants = append(r.participants, p)
		if len(r.participants) == 1 {
			r.hostID = connID
		}
		log.Info().
			Str("room_id", r.id).
			Str("conn_id", connID).
			Str("user", name).
			Int("roster_size", len(r.participants)).
			Msg("participant joined")
	} else {
		log.Debug().
			Str("room_id", r.id).
			Str("user", name).
			Msg("duplicate join, resyncing")
	}

	r.emit(events.EventTypeRoomJoined, events.RoomJoinedPayload{
		Users:  r.rosterLocked(),
		Prompt: r.prompt,
		Mode:   string(r.mode),
		HostID: r.hostID,
	})
	return nil
}

// Start begins the countdown. Only the host may start, and only from
// Waiting; anything else is a silent no-op.
func (r *Room) Start(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if connID != r.hostID {
		log.Debug().Str("room_id", r.id).Str("conn_id", connID).Msg("start ignored: not host")
		return
	}
	if r.state != StateWaiting {
		log.Debug().Str("room_id", r.id).Str("state", string(r.state)).Msg("start ignored: race already underway")
		return
	}

	r.state = StateCountingDown
	epoch := r.epoch

	r.emit(events.EventTypeCountdownTick, events.CountdownTickPayload{Count: r.countdownFrom})
	r.timers.StartCountdown(r.id, r.countdownFrom,
		func(count int) { r.countdownTick(epoch, count) },
		func() { r.beginRace(epoch) },
	)
	log.Info().Str("room_id", r.id).Msg("countdown started")
}

func (r *Room) countdownTick(epoch uint64, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleLocked(epoch, StateCountingDown) {
		return
	}
	r.emit(events.EventTypeCountdownTick, events.CountdownTickPayload{Count: count})
}

func (r *Room) beginRace(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleLocked(epoch, StateCountingDown) {
		return
	}

	r.state = StateRacing
	r.startedAt = r.clock.Now()

	// The race clock is armed before the broadcast so the race is fully
	// underway by the time clients see game-start.
	r.timers.StartRaceClock(r.id, r.mode.Duration(),
		func(remaining int) { r.raceTick(epoch, remaining) },
		func() { r.raceExpired(epoch) },
	)
	r.emit(events.EventTypeGameStart, events.GameStartPayload{
		Prompt: r.prompt,
		Mode:   string(r.mode),
	})
	log.Info().Str("room_id", r.id).Str("mode", string(r.mode)).Msg("race started")
}

func (r *Room) raceTick(epoch uint64, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleLocked(epoch, StateRacing) {
		return
	}
	r.emit(events.EventTypeTimerTick, events.TimerTickPayload{TimeRemainingSec: remaining})
}

func (r *Room) raceExpired(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleLocked(epoch, StateRacing) {
		return
	}
	r.finishLocked()
	log.Info().Str("room_id", r.id).Msg("race finished on duration expiry")
}

// staleLocked reports whether a timer callback belongs to a superseded
// race and must be a no-op.
func (r *Room) staleLocked(epoch uint64, want State) bool {
	if r.closed || r.epoch != epoch || r.state != want {
		log.Debug().
			Str("room_id", r.id).
			Uint64("epoch", epoch).
			Str("state", string(r.state)).
			Msg("ignoring stale timer fire")
		return true
	}
	return false
}

func (r *Room) finishLocked() {
	r.state = StateFinished
	r.emit(events.EventTypeGameOver, events.GameOverPayload{Users: r.rosterLocked()})
}

// UpdateProgress records a participant's live stats and broadcasts the
// refreshed roster. Unknown names are an expected race with teardown and
// are ignored. When every participant has finished mid-race the race ends
// early with the same single game-over broadcast.
func (r *Room) UpdateProgress(name string, progress int, wpm, accuracy float64, finished bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	p := r.findByName(name)
	if p == nil {
		log.Debug().Str("room_id", r.id).Str("user", name).Msg("progress for unknown participant, ignoring")
		return
	}

	if progress > p.Progress {
		p.Progress = progress
	}
	p.WPM = wpm
	p.Accuracy = accuracy
	if finished {
		p.Finished = true
	}

	r.emit(events.EventTypePlayerProgress, events.PlayerProgressPayload{Users: r.rosterLocked()})

	if r.state == StateRacing && r.allFinishedLocked() {
		r.timers.Cancel(r.id)
		r.finishLocked()
		log.Info().Str("room_id", r.id).Msg("race finished early: all participants done")
	}
}

func (r *Room) allFinishedLocked() bool {
	for _, p := range r.participants {
		if !p.Finished {
			return false
		}
	}
	return len(r.participants) > 0
}

// Restart resets the room for a new race: fresh prompt, zeroed stats,
// cleared timers, back to Waiting. Host only. The prompt is fetched by the
// caller before entering the critical section; host and closed state are
// re-validated here.
func (r *Room) Restart(connID, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if connID != r.hostID {
		log.Debug().Str("room_id", r.id).Str("conn_id", connID).Msg("restart ignored: not host")
		return
	}

	r.epoch++
	r.timers.Cancel(r.id)
	r.prompt = prompt
	r.state = StateWaiting
	r.startedAt = time.Time{}
	for _, p := range r.participants {
		p.resetStats()
	}

	r.emit(events.EventTypeRestartAck, events.RestartAckPayload{})
	r.emit(events.EventTypeRoomJoined, events.RoomJoinedPayload{
		Users:  r.rosterLocked(),
		Prompt: r.prompt,
		Mode:   string(r.mode),
		HostID: r.hostID,
	})
	log.Info().Str("room_id", r.id).Uint64("epoch", r.epoch).Msg("room restarted")
}

// Leave removes the participant with the given connection id, if present.
// Host authority transfers to the longest-surviving participant. The
// second return value tells the caller the roster is now empty and the
// room should be dropped from the registry.
func (r *Room) Leave(connID string) (removed bool, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, false
	}

	idx := -1
	for i, p := range r.participants {
		if p.ID == connID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false
	}

	name := r.participants[idx].Name
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)
	log.Info().
		Str("room_id", r.id).
		Str("conn_id", connID).
		Str("user", name).
		Int("roster_size", len(r.participants)).
		Msg("participant left")

	if len(r.participants) == 0 {
		return true, true
	}

	if r.hostID == connID {
		r.hostID = r.participants[0].ID
		log.Info().
			Str("room_id", r.id).
			Str("new_host", r.hostID).
			Msg("host disconnected, authority transferred to oldest participant")
	}

	r.emit(events.EventTypePlayerProgress, events.PlayerProgressPayload{Users: r.rosterLocked()})
	return true, false
}

// closeIfEmpty marks an empty room closed, invalidating its timers.
// Returns true when the registry entry should be deleted.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.participants) > 0 {
		return false
	}
	if !r.closed {
		r.closed = true
		r.epoch++
		r.timers.Cancel(r.id)
	}
	return true
}

// Snapshot returns a copy of the room's externally visible state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RoomID: r.id,
		State:  r.state,
		Mode:   r.mode,
		Prompt: r.prompt,
		HostID: r.hostID,
		Users:  r.rosterLocked(),
	}
}

// Snapshot is a point-in-time view of a room.
type Snapshot struct {
	RoomID string          `json:"room_id"`
	State  State           `json:"state"`
	Mode   Mode            `json:"mode"`
	Prompt string          `json:"prompt"`
	HostID string          `json:"hostId"`
	Users  []events.Player `json:"users"`
}

func (r *Room) findByName(name string) *Participant {
	for _, p := range r.participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// rosterLocked builds the leaderboard-ordered wire view of the roster.
// The ordering is computed fresh on every broadcast, never stored.
func (r *Room) rosterLocked() []events.Player {
	players := make([]events.Player, 0, len(r.participants))
	for _, p := range r.participants {
		players = append(players, events.Player{
			ID:       p.ID,
			Name:     p.Name,
			Progress: p.Progress,
			WPM:      p.WPM,
			Accuracy: p.Accuracy,
			Finished: p.Finished,
			IsHost:   p.ID == r.hostID,
		})
	}
	SortLeaderboard(players)
	return players
}

func (r *Room) emit(eventType events.EventType, payload interface{}) {
	ev, err := events.New(r.id, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", r.id).Str("event_type", string(eventType)).Msg("failed to build broadcast event")
		return
	}
	r.broadcast.BroadcastToRoom(r.id, ev)
}
