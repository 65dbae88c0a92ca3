package events

// Player is the wire representation of a roster member. Field names match
// what the web client renders.
type Player struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Progress int     `json:"progress"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Finished bool    `json:"finished"`
	IsHost   bool    `json:"isHost"`
}

// JoinRoomPayload joins a connection to a room under a display name.
// Mode is only honored when the join creates the room.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	User   string `json:"user"`
	Mode   string `json:"mode,omitempty"`
}

// StartGamePayload asks the server to start the countdown. Host only.
type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

// UpdateProgressPayload reports a participant's live typing stats.
type UpdateProgressPayload struct {
	RoomID   string  `json:"roomId"`
	User     string  `json:"user"`
	Progress int     `json:"progress"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Finished bool    `json:"finished,omitempty"`
}

// RestartGamePayload asks the server to reset the room for a new race. Host only.
type RestartGamePayload struct {
	RoomID string `json:"roomId"`
}

// RoomJoinedPayload carries the full room state so joiners (and rejoiners)
// can resynchronize against an in-progress race.
type RoomJoinedPayload struct {
	Users  []Player `json:"users"`
	Prompt string   `json:"prompt"`
	Mode   string   `json:"mode"`
	HostID string   `json:"hostId"`
}

// CountdownTickPayload is sent once per pre-race countdown second.
type CountdownTickPayload struct {
	Count int `json:"count"`
}

// GameStartPayload marks the instant the race begins.
type GameStartPayload struct {
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

// TimerTickPayload contains the remaining race time, pushed once per second.
type TimerTickPayload struct {
	TimeRemainingSec int `json:"timeRemainingSec"`
}

// PlayerProgressPayload carries the leaderboard-ordered roster after any
// progress update or roster change.
type PlayerProgressPayload struct {
	Users []Player `json:"users"`
}

// GameOverPayload is sent exactly once per race, with the final standings.
type GameOverPayload struct {
	Users []Player `json:"users"`
}

// RestartAckPayload tells clients to reset local race state before the
// follow-up room-joined broadcast arrives.
type RestartAckPayload struct{}
