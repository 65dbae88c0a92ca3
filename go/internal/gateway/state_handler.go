package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/raceloop/typerace/go/internal/race"
)

// StateProvider exposes point-in-time room state for the REST surface.
type StateProvider interface {
	RoomSnapshot(roomID string) (race.Snapshot, bool)
	RoomCount() int
}

// StateHandler serves read-only room state over HTTP, useful for page
// loads and debugging without opening a WebSocket.
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler.
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleRoomState returns the snapshot of a single room.
func (h *StateHandler) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	snapshot, ok := h.provider.RoomSnapshot(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to write room state")
	}
}

// RegisterStateRoutes registers the REST routes with an HTTP mux.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms/state", h.HandleRoomState)
}
