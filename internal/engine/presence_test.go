package engine

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleJoin_RejectsMalformed(t *testing.T) {
	cases := []struct {
		name   string
		player Player
	}{
		{name: "missing id", player: Player{Room: "R"}},
		{name: "missing room", player: Player{ID: "p1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewPresence()
			_, err := r.HandleJoin(tc.player)
			assert.ErrorIs(t, err, ErrMalformedEvent)
			_, err = r.HandleLeave(tc.player)
			assert.ErrorIs(t, err, ErrMalformedEvent)
			assert.Empty(t, r.ActiveRooms())
		})
	}
}

func TestHandleJoin_IsIdempotent(t *testing.T) {
	r := NewPresence()
	p := Player{ID: "p1", Name: "Alice", Room: "R", JoinedAt: 1}

	once, err := r.HandleJoin(p)
	require.NoError(t, err)
	twice, err := r.HandleJoin(p)
	require.NoError(t, err)

	assert.Equal(t, EvtPresenceUpdated, twice.Type)
	assert.Equal(t, once.Roster, twice.Roster)
	assert.Len(t, r.PlayersInRoom("R"), 1)
}

func TestHandleLeave_AbsentPlayerStillEmits(t *testing.T) {
	r := NewPresence()
	_, err := r.HandleJoin(Player{ID: "p1", Room: "R"})
	require.NoError(t, err)

	ev, err := r.HandleLeave(Player{ID: "ghost", Room: "R"})
	require.NoError(t, err)
	assert.Equal(t, EvtPresenceUpdated, ev.Type)
	assert.Equal(t, "R", ev.Room)
	assert.Len(t, ev.Roster, 1)

	ev, err = r.HandleLeave(Player{ID: "p1", Room: "nowhere"})
	require.NoError(t, err)
	assert.Empty(t, ev.Roster)
	assert.NotNil(t, ev.Roster)
}

func TestPlayersInRoom_OrdersByJoinTimeThenInsertion(t *testing.T) {
	r := NewPresence()
	joins := []Player{
		{ID: "late", Room: "R", JoinedAt: 30},
		{ID: "tie-1", Room: "R", JoinedAt: 10},
		{ID: "tie-2", Room: "R", JoinedAt: 10},
		{ID: "early", Room: "R", JoinedAt: 5},
		{ID: "other", Room: "S", JoinedAt: 1},
	}
	for _, p := range joins {
		_, err := r.HandleJoin(p)
		require.NoError(t, err)
	}

	var ids []string
	for _, p := range r.PlayersInRoom("R") {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, ids)
	assert.Equal(t, []string{"R", "S"}, r.ActiveRooms())
	assert.Empty(t, r.PlayersInRoom("unknown"))
}

func TestPlayersInRoom_ReturnsCopy(t *testing.T) {
	r := NewPresence()
	_, err := r.HandleJoin(Player{ID: "p1", Name: "Alice", Room: "R"})
	require.NoError(t, err)

	roster := r.PlayersInRoom("R")
	roster[0].Name = "Mallory"

	assert.Equal(t, "Alice", r.PlayersInRoom("R")[0].Name)
}

func TestApplyPresence_DoesNotMutateInput(t *testing.T) {
	s := PresenceState{Rooms: map[string][]Player{"R": {{ID: "p1", Room: "R"}}}}

	_, next, err := ApplyPresence(s, JoinRoom{Player: Player{ID: "p2", Room: "R"}})
	require.NoError(t, err)
	assert.Len(t, s.Rooms["R"], 1)
	assert.Len(t, next.Rooms["R"], 2)

	_, next, err = ApplyPresence(next, LeaveRoom{Player: Player{ID: "p1", Room: "R"}})
	require.NoError(t, err)
	assert.Len(t, s.Rooms["R"], 1)
	assert.Equal(t, "p2", next.Rooms["R"][0].ID)
}

func TestActiveRooms_DropsEmptiedRooms(t *testing.T) {
	r := NewPresence()
	_, _ = r.HandleJoin(Player{ID: "p1", Room: "R"})
	_, _ = r.HandleJoin(Player{ID: "p1", Room: "S"})
	_, _ = r.HandleLeave(Player{ID: "p1", Room: "R"})

	assert.Equal(t, []string{"S"}, r.ActiveRooms())
}

// After any replay, a room holds exactly the players whose last event there
// was a join.
func TestPresence_ReplayMatchesLastEventModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	rooms := []string{"R1", "R2", "R3"}

	for round := 0; round < 50; round++ {
		r := NewPresence()
		model := map[string]map[string]bool{}

		for step := 0; step < 200; step++ {
			p := Player{
				ID:       fmt.Sprintf("p%d", rng.IntN(6)),
				Room:     rooms[rng.IntN(len(rooms))],
				JoinedAt: int64(step),
			}
			if model[p.Room] == nil {
				model[p.Room] = map[string]bool{}
			}
			if rng.IntN(2) == 0 {
				_, err := r.HandleJoin(p)
				require.NoError(t, err)
				model[p.Room][p.ID] = true
			} else {
				_, err := r.HandleLeave(p)
				require.NoError(t, err)
				delete(model[p.Room], p.ID)
			}
		}

		for _, room := range rooms {
			seen := map[string]bool{}
			for _, p := range r.PlayersInRoom(room) {
				require.False(t, seen[p.ID], "duplicate %s in %s", p.ID, room)
				seen[p.ID] = true
			}
			assert.Equal(t, len(model[room]), len(seen), "room %s", room)
			for id := range model[room] {
				assert.True(t, seen[id], "room %s missing %s", room, id)
			}
		}
	}
}
