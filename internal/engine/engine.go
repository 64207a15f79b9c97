package engine

import "errors"

var ErrMalformedEvent = errors.New("malformed event")
var ErrWrongStatus = errors.New("wrong match status")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrAlreadyFinished = errors.New("match already finished")
var ErrCountdownPending = errors.New("countdown still running")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCountdown  Status = "countdown"
	StatusInProgress Status = "in-progress"
	StatusFinished   Status = "finished"
)

// Player is a connected participant. JoinedAt is logical time in unix
// milliseconds, non-decreasing per client.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Room     string `json:"room"`
	JoinedAt int64  `json:"joinedAt"`
}

type MatchPlayer struct {
	Player
	Progress float64 `json:"progress"`
	WPM      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
}

// PresenceState maps a room to its members in insertion order.
type PresenceState struct {
	Rooms map[string][]Player
}

// MatchState is one race. Winner is set only once Status is finished.
type MatchState struct {
	Prompt     string        `json:"prompt"`
	Status     Status        `json:"status"`
	Players    []MatchPlayer `json:"players"`
	Winner     *MatchPlayer  `json:"winner"`
	Loser      *MatchPlayer  `json:"loser"`
	StartAt    int64         `json:"startTime,omitempty"`
	FinishedAt int64         `json:"finishTime,omitempty"`
}

type EventType string

const (
	EvtPresenceUpdated EventType = "presence:updated"
	EvtStarted         EventType = "started"
	EvtStateUpdated    EventType = "state:updated"
	EvtFinished        EventType = "finished"
	EvtReset           EventType = "reset"
)

// Event is a full snapshot emitted after an accepted mutation. Presence
// events carry Roster, match events carry Match.
type Event struct {
	Type   EventType
	Room   string
	Roster []Player
	Match  *MatchState
}

/*
	JoinRoom       -> EvtPresenceUpdated
	LeaveRoom      -> EvtPresenceUpdated
	StartMatch     -> EvtStarted (status countdown or in-progress)
	Tick           -> EvtStateUpdated once the countdown has elapsed
	UpdateProgress -> EvtStateUpdated
	FinishMatch    -> EvtFinished, first accepted one only
	ResetMatch     -> EvtReset
*/

type PresenceCommand interface{ isPresenceCommand() }

type JoinRoom struct{ Player Player }

type LeaveRoom struct{ Player Player }

func (JoinRoom) isPresenceCommand()  {}
func (LeaveRoom) isPresenceCommand() {}

type MatchCommand interface{ isMatchCommand() }

// StartMatch begins a race. A StartAt after Now schedules a countdown.
type StartMatch struct {
	Players []Player
	Prompt  string
	StartAt int64
	Now     int64
}

type Tick struct{ Now int64 }

type UpdateProgress struct {
	PlayerID string
	Progress float64
	WPM      float64
	Accuracy float64
}

// FinishMatch reports a player completing the prompt. Loser is optional.
type FinishMatch struct {
	Winner     Player
	Loser      *Player
	FinishedAt int64
	Now        int64
}

type ResetMatch struct{}

func (StartMatch) isMatchCommand()     {}
func (Tick) isMatchCommand()           {}
func (UpdateProgress) isMatchCommand() {}
func (FinishMatch) isMatchCommand()    {}
func (ResetMatch) isMatchCommand()     {}
