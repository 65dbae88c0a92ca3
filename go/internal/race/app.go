package race

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PromptProvider supplies the shared text for a race. Implementations must
// complete within a bounded time and substitute a local fallback on any
// failure, so the engine never observes a failed fetch.
type PromptProvider interface {
	Fetch(ctx context.Context, mode Mode) string
}

// Config holds engine tunables.
type Config struct {
	CountdownSeconds int
}

// App is the coordination engine facade: it resolves rooms through the
// registry and routes every inbound event to the owning room's serialized
// mutation path.
type App struct {
	registry      *Registry
	prompts       PromptProvider
	broadcast     Broadcaster
	timers        *TimerEngine
	clock         clockwork.Clock
	countdownFrom int
}

// NewApp wires the engine together.
func NewApp(prompts PromptProvider, broadcast Broadcaster, clock clockwork.Clock, cfg Config) *App {
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultCountdownSeconds
	}
	return &App{
		registry:      NewRegistry(),
		prompts:       prompts,
		broadcast:     broadcast,
		timers:        NewTimerEngine(clock),
		clock:         clock,
		countdownFrom: cfg.CountdownSeconds,
	}
}

// JoinRoom adds a connection to a room under a display name, creating the
// room (and fetching its prompt) on first join. The creating caller is
// seeded as the first participant before the room becomes visible, so it
// holds host no matter how the joins that waited on the creation are
// scheduled. The mode is only honored at creation. Joining an existing
// name is an idempotent resync.
func (a *App) JoinRoom(ctx context.Context, roomID, connID, name, mode string) {
	for {
		room, created := a.registry.GetOrCreate(ctx, roomID, func(ctx context.Context) *Room {
			m := ParseMode(mode)
			prompt := a.prompts.Fetch(ctx, m)
			r := newRoom(roomID, m, prompt, a.broadcast, a.timers, a.clock, a.countdownFrom)
			r.Join(connID, name)
			return r
		})
		if created {
			return
		}
		if err := room.Join(connID, name); err == nil {
			return
		}
		// The room emptied and was torn down between resolution and
		// join. Resolve again; the next pass creates a fresh room.
		log.Debug().Str("room_id", roomID).Msg("resolved a closing room, retrying join")
	}
}

// StartGame begins the countdown for a room. Host only; everything else is
// a silent no-op.
func (a *App) StartGame(roomID, connID string) {
	room := a.registry.Get(roomID)
	if room == nil {
		log.Debug().Str("room_id", roomID).Msg("start for unknown room, ignoring")
		return
	}
	room.Start(connID)
}

// UpdateProgress records a participant's live stats. Late events against a
// torn-down room are expected and ignored.
func (a *App) UpdateProgress(roomID, name string, progress int, wpm, accuracy float64, finished bool) {
	room := a.registry.Get(roomID)
	if room == nil {
		log.Debug().Str("room_id", roomID).Msg("progress for unknown room, ignoring")
		return
	}
	room.UpdateProgress(name, progress, wpm, accuracy, finished)
}

// RestartGame resets a room for a new race with a freshly fetched prompt
// for the unchanged mode. Host only. The host check runs before the fetch
// to avoid a wasted request, then is re-validated under the room lock.
func (a *App) RestartGame(ctx context.Context, roomID, connID string) {
	room := a.registry.Get(roomID)
	if room == nil {
		log.Debug().Str("room_id", roomID).Msg("restart for unknown room, ignoring")
		return
	}
	if !room.IsHost(connID) {
		log.Debug().Str("room_id", roomID).Str("conn_id", connID).Msg("restart ignored: not host")
		return
	}
	prompt := a.prompts.Fetch(ctx, room.Mode())
	room.Restart(connID, prompt)
}

// Disconnect removes the connection from every room it belongs to (at most
// one in practice, but redundant calls are safe), transferring host
// authority and dropping rooms that empty out.
func (a *App) Disconnect(connID string) {
	for _, room := range a.registry.Rooms() {
		removed, empty := room.Leave(connID)
		if removed && empty {
			a.registry.RemoveIfEmpty(room.ID())
		}
	}
}

// RoomSnapshot returns a point-in-time view of a room, if it exists.
func (a *App) RoomSnapshot(roomID string) (Snapshot, bool) {
	room := a.registry.Get(roomID)
	if room == nil {
		return Snapshot{}, false
	}
	return room.Snapshot(), true
}

// RoomCount returns the number of live rooms.
func (a *App) RoomCount() int {
	return a.registry.Len()
}
