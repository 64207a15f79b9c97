package engine

import (
	"maps"
	"slices"
)

func ApplyPresence(s PresenceState, cmd PresenceCommand) ([]Event, PresenceState, error) {
	switch c := cmd.(type) {
	case JoinRoom:
		p := c.Player
		if p.ID == "" || p.Room == "" {
			return nil, s, ErrMalformedEvent
		}

		newState := s
		if !hasMember(s, p.ID, p.Room) {
			newState = PresenceState{Rooms: maps.Clone(s.Rooms)}
			if newState.Rooms == nil {
				newState.Rooms = map[string][]Player{}
			}
			newState.Rooms[p.Room] = append(slices.Clone(s.Rooms[p.Room]), p)
		}
		return []Event{rosterEvent(newState, p.Room)}, newState, nil

	case LeaveRoom:
		p := c.Player
		if p.ID == "" || p.Room == "" {
			return nil, s, ErrMalformedEvent
		}

		newState := s
		if hasMember(s, p.ID, p.Room) {
			newState = PresenceState{Rooms: maps.Clone(s.Rooms)}
			remaining := slices.DeleteFunc(slices.Clone(s.Rooms[p.Room]), func(m Player) bool {
				return m.ID == p.ID
			})
			if len(remaining) == 0 {
				delete(newState.Rooms, p.Room)
			} else {
				newState.Rooms[p.Room] = remaining
			}
		}
		return []Event{rosterEvent(newState, p.Room)}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// PlayersInRoom returns a copy of the room's roster ordered by join time,
// ties broken by insertion order. Unknown rooms yield an empty slice.
func PlayersInRoom(s PresenceState, room string) []Player {
	roster := slices.Clone(s.Rooms[room])
	if roster == nil {
		return []Player{}
	}
	slices.SortStableFunc(roster, func(a, b Player) int {
		switch {
		case a.JoinedAt < b.JoinedAt:
			return -1
		case a.JoinedAt > b.JoinedAt:
			return 1
		}
		return 0
	})
	return roster
}

func ActiveRooms(s PresenceState) []string {
	rooms := make([]string, 0, len(s.Rooms))
	for room, members := range s.Rooms {
		if len(members) > 0 {
			rooms = append(rooms, room)
		}
	}
	slices.Sort(rooms)
	return rooms
}

func hasMember(s PresenceState, id, room string) bool {
	return slices.ContainsFunc(s.Rooms[room], func(p Player) bool { return p.ID == id })
}

func rosterEvent(s PresenceState, room string) Event {
	return Event{Type: EvtPresenceUpdated, Room: room, Roster: PlayersInRoom(s, room)}
}

// Presence is a reducer instance holding the authoritative roster of every
// room. Callers must serialize access.
type Presence struct {
	state PresenceState
}

func NewPresence() *Presence {
	return &Presence{state: PresenceState{Rooms: map[string][]Player{}}}
}

func (r *Presence) Apply(cmd PresenceCommand) ([]Event, error) {
	events, next, err := ApplyPresence(r.state, cmd)
	if err != nil {
		return nil, err
	}
	r.state = next
	return events, nil
}

func (r *Presence) HandleJoin(p Player) (Event, error) {
	return first(r.Apply(JoinRoom{Player: p}))
}

func (r *Presence) HandleLeave(p Player) (Event, error) {
	return first(r.Apply(LeaveRoom{Player: p}))
}

func (r *Presence) PlayersInRoom(room string) []Player { return PlayersInRoom(r.state, room) }

func (r *Presence) ActiveRooms() []string { return ActiveRooms(r.state) }
