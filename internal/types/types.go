package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/monatype-server/internal/engine"
)

var ErrBadJSON = errors.New("bad json")
var ErrUnknownType = errors.New("unknown type")

const (
	MsgPlayerJoin   = "player:join"
	MsgPlayerLeave  = "player:leave"
	MsgStart        = "start"
	MsgPlayerUpdate = "player:update"
	MsgPlayerFinish = "player:finish"
	MsgFinish       = "finish"
	MsgReset        = "reset"
)

type PlayerPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Room     string `json:"room,omitempty"`
	JoinedAt int64  `json:"joinedAt,omitempty"`
}

type ClientMessage struct {
	Type string `json:"type"`

	// player:join, player:leave, player:update, player:finish
	ID       string `json:"id,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name,omitempty"`
	Room     string `json:"room,omitempty"`
	JoinedAt int64  `json:"joinedAt,omitempty"`

	// start
	Players   []PlayerPayload `json:"players,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
	StartTime int64           `json:"startTime,omitempty"`

	// player:update
	Progress *float64 `json:"progress,omitempty"`
	WPM      *float64 `json:"wpm,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`

	// finish
	Winner     *PlayerPayload `json:"winner,omitempty"`
	Loser      *PlayerPayload `json:"loser,omitempty"`
	FinishTime int64          `json:"finishTime,omitempty"`
}

type ServerMessage struct {
	Type     string             `json:"type"` // event name | "welcome" | "error"
	Version  int                `json:"version"`
	Room     string             `json:"room,omitempty"`
	PlayerID string             `json:"playerId,omitempty"`
	Players  []engine.Player    `json:"players,omitzero"`
	State    *engine.MatchState `json:"state,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// RejectError is a malformed inbound event. It matches
// engine.ErrMalformedEvent under errors.Is.
type RejectError struct {
	Type  string
	Field string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: missing or invalid %s", e.Type, e.Field)
}

func (e *RejectError) Unwrap() error { return engine.ErrMalformedEvent }

// Inbound is a validated client event bound for one of the reducers.
type Inbound interface{ isInbound() }

type PresenceInbound struct{ Cmd engine.PresenceCommand }

type MatchInbound struct{ Cmd engine.MatchCommand }

func (PresenceInbound) isInbound() {}
func (MatchInbound) isInbound()    {}

// Conn is what the transport knows about the sender; it fills fields the
// client left out.
type Conn struct {
	PlayerID string
	Name     string
	Room     string
	JoinedAt int64
}

func (c Conn) Player() engine.Player {
	return engine.Player{ID: c.PlayerID, Name: c.Name, Room: c.Room, JoinedAt: c.JoinedAt}
}

func Decode(data []byte, conn Conn) (Inbound, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	return ToInbound(m, conn)
}

func ToInbound(m ClientMessage, conn Conn) (Inbound, error) {
	switch m.Type {
	case MsgPlayerJoin, MsgPlayerLeave:
		p, err := presencePlayer(m, conn)
		if err != nil {
			return nil, err
		}
		if m.Type == MsgPlayerJoin {
			return PresenceInbound{Cmd: engine.JoinRoom{Player: p}}, nil
		}
		return PresenceInbound{Cmd: engine.LeaveRoom{Player: p}}, nil

	case MsgStart:
		players := make([]engine.Player, 0, len(m.Players))
		for _, pp := range m.Players {
			if pp.ID == "" {
				return nil, &RejectError{Type: m.Type, Field: "players.id"}
			}
			players = append(players, toPlayer(pp, conn.Room))
		}
		if m.StartTime < 0 {
			return nil, &RejectError{Type: m.Type, Field: "startTime"}
		}
		return MatchInbound{Cmd: engine.StartMatch{Players: players, Prompt: m.Prompt, StartAt: m.StartTime}}, nil

	case MsgPlayerUpdate:
		id := firstNonEmpty(m.ID, m.PlayerID, conn.PlayerID)
		if id == "" {
			return nil, &RejectError{Type: m.Type, Field: "id"}
		}
		switch {
		case m.Progress == nil:
			return nil, &RejectError{Type: m.Type, Field: "progress"}
		case m.WPM == nil:
			return nil, &RejectError{Type: m.Type, Field: "wpm"}
		case m.Accuracy == nil:
			return nil, &RejectError{Type: m.Type, Field: "accuracy"}
		}
		return MatchInbound{Cmd: engine.UpdateProgress{
			PlayerID: id,
			Progress: *m.Progress,
			WPM:      *m.WPM,
			Accuracy: *m.Accuracy,
		}}, nil

	case MsgPlayerFinish, MsgFinish:
		var winner engine.Player
		switch {
		case m.Winner != nil:
			winner = toPlayer(*m.Winner, conn.Room)
		case m.Type == MsgPlayerFinish:
			// player:finish may carry the winner inline.
			winner = engine.Player{ID: firstNonEmpty(m.ID, m.PlayerID, conn.PlayerID), Name: m.Name, Room: conn.Room}
		}
		if winner.ID == "" {
			return nil, &RejectError{Type: m.Type, Field: "winner.id"}
		}
		cmd := engine.FinishMatch{Winner: winner, FinishedAt: m.FinishTime}
		if m.Loser != nil && m.Loser.ID != "" {
			loser := toPlayer(*m.Loser, conn.Room)
			cmd.Loser = &loser
		}
		return MatchInbound{Cmd: cmd}, nil

	case MsgReset:
		return MatchInbound{Cmd: engine.ResetMatch{}}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

func presencePlayer(m ClientMessage, conn Conn) (engine.Player, error) {
	p := engine.Player{
		ID:       firstNonEmpty(m.ID, m.PlayerID, conn.PlayerID),
		Name:     firstNonEmpty(m.Name, conn.Name),
		Room:     firstNonEmpty(m.Room, conn.Room),
		JoinedAt: m.JoinedAt,
	}
	if p.JoinedAt == 0 {
		p.JoinedAt = conn.JoinedAt
	}
	switch {
	case p.ID == "":
		return p, &RejectError{Type: m.Type, Field: "id"}
	case p.Room == "" || (conn.Room != "" && p.Room != conn.Room):
		return p, &RejectError{Type: m.Type, Field: "room"}
	}
	return p, nil
}

func toPlayer(pp PlayerPayload, room string) engine.Player {
	return engine.Player{ID: pp.ID, Name: pp.Name, Room: firstNonEmpty(pp.Room, room), JoinedAt: pp.JoinedAt}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// FromSnapshot renders an emitted event for the wire.
func FromSnapshot(version int, ev engine.Event) ServerMessage {
	return ServerMessage{
		Type:    string(ev.Type),
		Version: version,
		Room:    ev.Room,
		Players: ev.Roster,
		State:   ev.Match,
	}
}

func Welcome(room, playerID string) ServerMessage {
	return ServerMessage{Type: "welcome", Room: room, PlayerID: playerID}
}

func Error(err error) ServerMessage {
	return ServerMessage{Type: "error", Error: err.Error()}
}
