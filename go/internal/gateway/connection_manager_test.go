package gateway

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceloop/typerace/go/internal/events"
)

type stubApp struct {
	disconnects atomic.Int32
}

func (s *stubApp) JoinRoom(ctx context.Context, roomID, connID, name, mode string) {}
func (s *stubApp) StartGame(roomID, connID string)                                 {}
func (s *stubApp) UpdateProgress(roomID, name string, progress int, wpm, accuracy float64, finished bool) {
}
func (s *stubApp) RestartGame(ctx context.Context, roomID, connID string) {}
func (s *stubApp) Disconnect(connID string)                               { s.disconnects.Add(1) }

func newPoolConnection(cm *ConnectionManager, app RaceApp, id string) *Connection {
	return &Connection{
		ID:      id,
		Send:    make(chan []byte, 4),
		Manager: cm,
		App:     app,
	}
}

func TestHandleBroadcast_DisconnectDuringFanOut(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	app := &stubApp{}

	alive := newPoolConnection(cm, app, "alive")
	gone := newPoolConnection(cm, app, "gone")
	cm.subscribe(alive, "R1")
	cm.subscribe(gone, "R1")

	// A disconnect can land between the pool snapshot and the send, so
	// the target list still holds a connection whose send channel has
	// been closed. The fan-out must skip it, not panic.
	gone.mu.Lock()
	gone.sendClosed = true
	close(gone.Send)
	gone.mu.Unlock()

	ev, err := events.New("R1", events.EventTypeRestartAck, events.RestartAckPayload{})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		cm.handleBroadcast(BroadcastMessage{RoomID: "R1", Event: ev})
	})

	select {
	case data := <-alive.Send:
		assert.NotEmpty(t, data)
	default:
		t.Fatal("live connection received nothing")
	}
}

func TestUnregisterConnection(t *testing.T) {
	t.Run("informs the engine exactly once", func(t *testing.T) {
		cm := NewConnectionManager(DefaultConnectionConfig())
		app := &stubApp{}
		conn := newPoolConnection(cm, app, "c1")
		cm.subscribe(conn, "R1")

		cm.unregisterConnection(conn)
		cm.unregisterConnection(conn)

		assert.Equal(t, int32(1), app.disconnects.Load())
	})

	t.Run("broadcast after unregister is silently dropped", func(t *testing.T) {
		cm := NewConnectionManager(DefaultConnectionConfig())
		app := &stubApp{}
		conn := newPoolConnection(cm, app, "c1")
		cm.subscribe(conn, "R1")
		cm.unregisterConnection(conn)

		assert.True(t, conn.trySend([]byte("late")))

		ev, err := events.New("R1", events.EventTypeRestartAck, events.RestartAckPayload{})
		require.NoError(t, err)
		require.NotPanics(t, func() {
			cm.handleBroadcast(BroadcastMessage{RoomID: "R1", Event: ev})
		})
	})
}
