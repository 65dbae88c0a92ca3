package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceloop/typerace/go/internal/events"
	"github.com/raceloop/typerace/go/internal/gateway"
	"github.com/raceloop/typerace/go/internal/race"
)

type fixedPrompts struct {
	prompt string
}

func (f fixedPrompts) Fetch(ctx context.Context, mode race.Mode) string {
	return f.prompt
}

// testServer wires a real engine behind the gateway over httptest.
type testServer struct {
	srv *httptest.Server
	app *race.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	app := race.NewApp(fixedPrompts{prompt: "the quick brown fox"}, manager, clockwork.NewRealClock(), race.Config{
		CountdownSeconds: race.DefaultCountdownSeconds,
	})

	mux := http.NewServeMux()
	gateway.NewWebSocketHandler(manager, app).RegisterRoutes(mux)
	gateway.NewStateHandler(app).RegisterStateRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{srv: srv, app: app}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType events.EventType, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	msg, err := json.Marshal(events.ClientMessage{Type: eventType, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
}

func readEvent(t *testing.T, conn *websocket.Conn) *events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return &ev
}

// readUntil drains events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType events.EventType) *events.Event {
	t.Helper()
	for i := 0; i < 20; i++ {
		ev := readEvent(t, conn)
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("never received %s", eventType)
	return nil
}

func decodeInto[T any](t *testing.T, ev *events.Event) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}

func TestGateway_JoinRoomOverWebSocket(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice", Mode: "1min"})

	ev := readEvent(t, conn)
	assert.Equal(t, events.EventTypeRoomJoined, ev.Type)
	assert.Equal(t, "R1", ev.RoomID)

	joined := decodeInto[events.RoomJoinedPayload](t, ev)
	assert.Equal(t, "the quick brown fox", joined.Prompt)
	assert.Equal(t, "1min", joined.Mode)
	require.Len(t, joined.Users, 1)
	assert.Equal(t, "Alice", joined.Users[0].Name)
	assert.True(t, joined.Users[0].IsHost)
	assert.Equal(t, joined.Users[0].ID, joined.HostID)
}

func TestGateway_SecondJoinerSeesFullRoster(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dial(t)
	guest := ts.dial(t)

	send(t, host, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	readUntil(t, host, events.EventTypeRoomJoined)

	send(t, guest, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Bob"})
	guestView := decodeInto[events.RoomJoinedPayload](t, readUntil(t, guest, events.EventTypeRoomJoined))
	require.Len(t, guestView.Users, 2)

	// The existing member receives the refreshed roster too.
	hostView := decodeInto[events.RoomJoinedPayload](t, readUntil(t, host, events.EventTypeRoomJoined))
	require.Len(t, hostView.Users, 2)
	assert.Equal(t, hostView.HostID, guestView.HostID)
}

func TestGateway_HostStartBroadcastsCountdown(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dial(t)
	guest := ts.dial(t)

	send(t, host, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	readUntil(t, host, events.EventTypeRoomJoined)
	send(t, guest, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Bob"})
	readUntil(t, guest, events.EventTypeRoomJoined)

	send(t, host, events.EventTypeStartGame, events.StartGamePayload{RoomID: "R1"})

	hostTick := decodeInto[events.CountdownTickPayload](t, readUntil(t, host, events.EventTypeCountdownTick))
	guestTick := decodeInto[events.CountdownTickPayload](t, readUntil(t, guest, events.EventTypeCountdownTick))
	assert.Equal(t, race.DefaultCountdownSeconds, hostTick.Count)
	assert.Equal(t, race.DefaultCountdownSeconds, guestTick.Count)
}

func TestGateway_ProgressReachesEveryMember(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dial(t)
	guest := ts.dial(t)

	send(t, host, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	readUntil(t, host, events.EventTypeRoomJoined)
	send(t, guest, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Bob"})
	readUntil(t, guest, events.EventTypeRoomJoined)

	send(t, guest, events.EventTypeUpdateProgress, events.UpdateProgressPayload{
		RoomID: "R1", User: "Bob", Progress: 17, WPM: 64.5, Accuracy: 98.1,
	})

	progress := decodeInto[events.PlayerProgressPayload](t, readUntil(t, host, events.EventTypePlayerProgress))
	require.Len(t, progress.Users, 2)
	assert.Equal(t, "Bob", progress.Users[0].Name)
	assert.Equal(t, 17, progress.Users[0].Progress)
}

func TestGateway_DisconnectRemovesParticipant(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dial(t)
	guest := ts.dial(t)

	send(t, host, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	readUntil(t, host, events.EventTypeRoomJoined)
	send(t, guest, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Bob"})
	readUntil(t, host, events.EventTypeRoomJoined)

	guest.Close()

	roster := decodeInto[events.PlayerProgressPayload](t, readUntil(t, host, events.EventTypePlayerProgress))
	require.Len(t, roster.Users, 1)
	assert.Equal(t, "Alice", roster.Users[0].Name)
}

func TestGateway_MalformedMessagesAreIgnored(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"made-up","data":{}}`)))
	send(t, conn, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "", User: ""})

	// The connection survives and a valid join still works.
	send(t, conn, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	ev := readUntil(t, conn, events.EventTypeRoomJoined)
	assert.Equal(t, "R1", ev.RoomID)
}

func TestGateway_StateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice", Mode: "5min"})
	readUntil(t, conn, events.EventTypeRoomJoined)

	resp, err := http.Get(ts.srv.URL + "/api/rooms/state?room_id=R1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot race.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, "R1", snapshot.RoomID)
	assert.Equal(t, race.StateWaiting, snapshot.State)
	assert.Equal(t, race.Mode5Min, snapshot.Mode)
	require.Len(t, snapshot.Users, 1)

	missing, err := http.Get(ts.srv.URL + "/api/rooms/state?room_id=nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(ts.srv.URL + "/api/rooms/state")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestGateway_StatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t)

	send(t, conn, events.EventTypeJoinRoom, events.JoinRoomPayload{RoomID: "R1", User: "Alice"})
	readUntil(t, conn, events.EventTypeRoomJoined)

	resp, err := http.Get(ts.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, float64(1), stats["total_connections"])
	assert.Equal(t, float64(1), stats["active_rooms"])
}
