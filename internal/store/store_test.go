package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/monatype-server/internal/engine"
)

func finishedState() engine.MatchState {
	winner := engine.MatchPlayer{Player: engine.Player{ID: "p1", Name: "Alice"}, Progress: 100, WPM: 92}
	loser := engine.MatchPlayer{Player: engine.Player{ID: "p2", Name: "Bob"}, Progress: 60, WPM: 41}
	return engine.MatchState{
		Prompt:     "pack my box",
		Status:     engine.StatusFinished,
		Players:    []engine.MatchPlayer{winner, loser},
		Winner:     &winner,
		Loser:      &loser,
		FinishedAt: 1_700_000_000_000,
	}
}

func TestResultFromMatch(t *testing.T) {
	r, ok := ResultFromMatch("ABCDEF", finishedState())
	require.True(t, ok)
	assert.Equal(t, "ABCDEF", r.Room)
	assert.Equal(t, "p1", r.WinnerID)
	assert.Equal(t, 92.0, r.WinnerWPM)
	assert.Equal(t, "Bob", r.LoserName)
	assert.Equal(t, 2, r.Players)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).UTC(), r.FinishedAt)

	_, ok = ResultFromMatch("ABCDEF", engine.NewMatchState())
	assert.False(t, ok)
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, room := range []string{"AAA", "BBB", "AAA", "AAA"} {
		r := Result{Room: room, WinnerID: room, Prompt: "p", FinishedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.Recent(ctx, "AAA", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].FinishedAt.After(got[1].FinishedAt))
	assert.Equal(t, base.Add(3*time.Second), got[0].FinishedAt.UTC())

	got, err = s.Recent(ctx, "CCC", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)

	all, err := m.Recent(context.Background(), "AAA", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.NoError(t, m.Close())
}

func TestMemory_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	assert.ErrorIs(t, m.Save(ctx, Result{Room: "AAA"}), context.Canceled)
	_, err := m.Recent(ctx, "AAA", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGorm_Postgres(t *testing.T) {
	dsn := os.Getenv("MONATYPE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MONATYPE_TEST_DATABASE_URL not set")
	}

	g, err := OpenPostgres(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.db.Exec("DELETE FROM match_results").Error)
	require.NoError(t, g.Ping(context.Background(), 2*time.Second))

	exerciseStore(t, g)
}
