package race

import (
	"time"
)

// State is the lifecycle phase of a room's current race.
type State string

const (
	StateWaiting      State = "WAITING"
	StateCountingDown State = "COUNTING_DOWN"
	StateRacing       State = "RACING"
	StateFinished     State = "FINISHED"
)

// Mode is a race-length preset. It fixes the race duration and the
// approximate prompt length requested from the provider.
type Mode string

const (
	Mode1Min Mode = "1min"
	Mode2Min Mode = "2min"
	Mode5Min Mode = "5min"

	DefaultMode = Mode2Min
)

// DefaultCountdownSeconds is the number of discrete pre-race countdown ticks.
const DefaultCountdownSeconds = 5

// ParseMode maps a client-supplied mode string to a preset, defaulting to
// 2min for empty or unknown values.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case Mode1Min, Mode2Min, Mode5Min:
		return Mode(s)
	default:
		return DefaultMode
	}
}

// Duration returns the race length for the mode.
func (m Mode) Duration() time.Duration {
	switch m {
	case Mode1Min:
		return 60 * time.Second
	case Mode5Min:
		return 300 * time.Second
	default:
		return 120 * time.Second
	}
}

// PromptLength returns the approximate prompt size in characters to
// request for the mode.
func (m Mode) PromptLength() int {
	switch m {
	case Mode1Min:
		return 150
	case Mode5Min:
		return 700
	default:
		return 300
	}
}

// Participant is one roster member of a room. All fields are guarded by
// the owning room's lock.
type Participant struct {
	ID       string // connection id, unique per active connection
	Name     string // display name, not guaranteed unique across rooms
	Progress int    // characters confirmed correct since race start
	WPM      float64
	Accuracy float64
	Finished bool
	JoinedAt time.Time
}

func (p *Participant) resetStats() {
	p.Progress = 0
	p.WPM = 0
	p.Accuracy = 0
	p.Finished = false
}
