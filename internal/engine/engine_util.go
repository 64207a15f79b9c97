package engine

import (
	"math/rand/v2"
	"slices"
)

func NewMatchState() MatchState {
	return MatchState{
		Status:  StatusWaiting,
		Players: []MatchPlayer{},
	}
}

// Clone copies the player slice and the winner/loser records so the result
// shares nothing with s.
func (s MatchState) Clone() MatchState {
	c := s
	c.Players = slices.Clone(s.Players)
	if c.Players == nil {
		c.Players = []MatchPlayer{}
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	if s.Loser != nil {
		l := *s.Loser
		c.Loser = &l
	}
	return c
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func first(events []Event, err error) (Event, error) {
	if err != nil || len(events) == 0 {
		return Event{}, err
	}
	return events[0], nil
}

var choosePrompt = func() string {
	return Prompts[rand.IntN(len(Prompts))]
}
