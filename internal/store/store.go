package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/monatype-server/internal/engine"
)

// Result is a finished match as kept in history.
type Result struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Room       string    `gorm:"index;size:16" json:"room"`
	Prompt     string    `json:"prompt"`
	WinnerID   string    `gorm:"size:64" json:"winnerId"`
	WinnerName string    `json:"winnerName"`
	WinnerWPM  float64   `json:"winnerWpm"`
	LoserID    string    `gorm:"size:64" json:"loserId,omitempty"`
	LoserName  string    `json:"loserName,omitempty"`
	Players    int       `json:"players"`
	FinishedAt time.Time `gorm:"index" json:"finishedAt"`
}

func (Result) TableName() string { return "match_results" }

type Store interface {
	Save(ctx context.Context, r Result) error
	Recent(ctx context.Context, room string, limit int) ([]Result, error)
	Close() error
}

// ResultFromMatch flattens a finished match. ok is false when s has no winner.
func ResultFromMatch(room string, s engine.MatchState) (Result, bool) {
	if s.Status != engine.StatusFinished || s.Winner == nil {
		return Result{}, false
	}
	r := Result{
		Room:       room,
		Prompt:     s.Prompt,
		WinnerID:   s.Winner.ID,
		WinnerName: s.Winner.Name,
		WinnerWPM:  s.Winner.WPM,
		Players:    len(s.Players),
		FinishedAt: time.UnixMilli(s.FinishedAt).UTC(),
	}
	if s.Loser != nil {
		r.LoserID = s.Loser.ID
		r.LoserName = s.Loser.Name
	}
	return r, true
}

type Memory struct {
	mu      sync.RWMutex
	results []Result
	nextID  uint
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.results = append(m.results, r)
	return nil
}

// Recent returns the newest results for room, newest first.
func (m *Memory) Recent(ctx context.Context, room string, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Result{}
	for _, r := range slices.Backward(m.results) {
		if r.Room != room {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
