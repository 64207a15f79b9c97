package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubPrompt(t *testing.T, prompt string) {
	t.Helper()
	orig := choosePrompt
	choosePrompt = func() string { return prompt }
	t.Cleanup(func() { choosePrompt = orig })
}

// Room ABCDEF: Alice and Bob join, race, Alice finishes first and Bob's late
// finish changes nothing.
func TestEndToEnd_FirstFinishWins(t *testing.T) {
	stubPrompt(t, "pack my box")

	presence := NewPresence()
	alice := Player{ID: "p1", Name: "Alice", Room: "ABCDEF", JoinedAt: 100}
	bob := Player{ID: "p2", Name: "Bob", Room: "ABCDEF", JoinedAt: 200}

	_, err := presence.HandleJoin(alice)
	require.NoError(t, err)
	ev, err := presence.HandleJoin(bob)
	require.NoError(t, err)
	assert.Equal(t, EvtPresenceUpdated, ev.Type)
	assert.Equal(t, []Player{alice, bob}, ev.Roster)

	match := NewMatch()
	started, err := match.Start(presence.PlayersInRoom("ABCDEF"), "", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, EvtStarted, started.Type)
	require.NotNil(t, started.Match)
	assert.Equal(t, StatusInProgress, started.Match.Status)
	assert.Equal(t, "pack my box", started.Match.Prompt)
	require.Len(t, started.Match.Players, 2)
	for _, p := range started.Match.Players {
		assert.Zero(t, p.Progress)
		assert.Zero(t, p.WPM)
		assert.Zero(t, p.Accuracy)
	}

	_, err = match.UpdateProgress("p1", 100, 80, 100)
	require.NoError(t, err)

	finished, err := match.Finish(alice, nil, 5000)
	require.NoError(t, err)
	assert.Equal(t, EvtFinished, finished.Type)
	assert.Equal(t, StatusFinished, finished.Match.Status)
	require.NotNil(t, finished.Match.Winner)
	assert.Equal(t, "p1", finished.Match.Winner.ID)
	assert.Equal(t, 80.0, finished.Match.Winner.WPM)
	require.NotNil(t, finished.Match.Loser)
	assert.Equal(t, "p2", finished.Match.Loser.ID)
	assert.Equal(t, int64(5000), finished.Match.FinishedAt)

	_, err = match.Finish(bob, nil, 5001)
	assert.ErrorIs(t, err, ErrAlreadyFinished)
	assert.Equal(t, "p1", match.Snapshot().Winner.ID)

	reset := match.Reset()
	assert.Equal(t, EvtReset, reset.Type)
	assert.Equal(t, NewMatchState(), match.Snapshot())
}

func TestApply_RejectsUnsupportedCommand(t *testing.T) {
	type bogus struct{ PresenceCommand }
	events, s, err := ApplyPresence(PresenceState{}, bogus{})
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	assert.Nil(t, events)
	assert.Empty(t, s.Rooms)

	type bogusMatch struct{ MatchCommand }
	events, ms, err := ApplyMatch(NewMatchState(), bogusMatch{})
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
	assert.Nil(t, events)
	assert.Equal(t, StatusWaiting, ms.Status)
}

func TestApply_EmitsSingleSnapshotPerAcceptedCommand(t *testing.T) {
	stubPrompt(t, "x")
	players := []Player{{ID: "a", Room: "R"}, {ID: "b", Room: "R"}}

	cases := []struct {
		name string
		cmd  MatchCommand
		want EventType
	}{
		{name: "progress", cmd: UpdateProgress{PlayerID: "a", Progress: 10}, want: EvtStateUpdated},
		{name: "finish", cmd: FinishMatch{Winner: players[1], Now: 9}, want: EvtFinished},
		{name: "reset", cmd: ResetMatch{}, want: EvtReset},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, s, err := ApplyMatch(NewMatchState(), StartMatch{Players: players, Now: 1})
			require.NoError(t, err)

			events, _, err := ApplyMatch(s, tc.cmd)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.True(t, ContainsEvent(events, tc.want))
		})
	}
}
