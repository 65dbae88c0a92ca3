package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every broadcast sent to the members of a room.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies a message on the wire, in either direction.
type EventType string

const (
	// Client to server.
	EventTypeJoinRoom       EventType = "join-room"
	EventTypeStartGame      EventType = "start-game"
	EventTypeUpdateProgress EventType = "update-progress"
	EventTypeRestartGame    EventType = "restart-game"

	// Server to room.
	EventTypeRoomJoined     EventType = "room-joined"
	EventTypeCountdownTick  EventType = "countdown-tick"
	EventTypeGameStart      EventType = "game-start"
	EventTypeTimerTick      EventType = "timer-tick"
	EventTypePlayerProgress EventType = "player-progress"
	EventTypeGameOver       EventType = "game-over"
	EventTypeRestartAck     EventType = "restart-ack"
)

// New builds a broadcast event with the payload marshaled into the envelope.
func New(roomID string, eventType EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// ClientMessage is the envelope for inbound messages from a connection.
type ClientMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseClientPayload decodes the payload of an inbound message into the
// struct for its event type. Unknown types return nil so callers can
// reject them at the boundary.
func ParseClientPayload(msg *ClientMessage) (interface{}, error) {
	switch msg.Type {
	case EventTypeJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeStartGame:
		var payload StartGamePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeUpdateProgress:
		var payload UpdateProgressPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRestartGame:
		var payload RestartGamePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
