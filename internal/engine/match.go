package engine

import "slices"

func ApplyMatch(s MatchState, cmd MatchCommand) ([]Event, MatchState, error) {
	switch c := cmd.(type) {
	case StartMatch:
		// Racing clients may all publish start; only the first one lands.
		if s.Status != StatusWaiting {
			return nil, s, ErrWrongStatus
		}

		players := make([]MatchPlayer, 0, len(c.Players))
		for _, p := range c.Players {
			if p.ID == "" {
				return nil, s, ErrMalformedEvent
			}
			if slices.ContainsFunc(players, func(mp MatchPlayer) bool { return mp.ID == p.ID }) {
				continue
			}
			players = append(players, MatchPlayer{Player: p})
		}
		if len(players) == 0 {
			return nil, s, ErrMalformedEvent
		}

		prompt := c.Prompt
		if prompt == "" {
			prompt = choosePrompt()
		}

		newState := MatchState{Prompt: prompt, Players: players}
		if c.StartAt > c.Now {
			newState.Status = StatusCountdown
			newState.StartAt = c.StartAt
		} else {
			newState.Status = StatusInProgress
			newState.StartAt = c.Now
		}
		return []Event{matchEvent(EvtStarted, newState)}, newState, nil

	case Tick:
		if s.Status != StatusCountdown {
			return nil, s, ErrWrongStatus
		}
		if c.Now < s.StartAt {
			return nil, s, ErrCountdownPending
		}

		newState := s
		newState.Status = StatusInProgress
		return []Event{matchEvent(EvtStateUpdated, newState)}, newState, nil

	case UpdateProgress:
		if c.PlayerID == "" {
			return nil, s, ErrMalformedEvent
		}
		if s.Status != StatusInProgress {
			return nil, s, ErrWrongStatus
		}
		i := playerIndex(s, c.PlayerID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}

		// Metrics are taken verbatim; the publisher derives and clamps them.
		newState := s
		newState.Players = slices.Clone(s.Players)
		newState.Players[i].Progress = c.Progress
		newState.Players[i].WPM = c.WPM
		newState.Players[i].Accuracy = c.Accuracy
		return []Event{matchEvent(EvtStateUpdated, newState)}, newState, nil

	case FinishMatch:
		if c.Winner.ID == "" {
			return nil, s, ErrMalformedEvent
		}
		if s.Status == StatusFinished || s.Winner != nil {
			return nil, s, ErrAlreadyFinished
		}
		if s.Status != StatusInProgress {
			return nil, s, ErrWrongStatus
		}
		wi := playerIndex(s, c.Winner.ID)
		if wi < 0 {
			return nil, s, ErrUnknownPlayer
		}

		newState := s
		newState.Players = slices.Clone(s.Players)
		newState.Status = StatusFinished
		winner := newState.Players[wi]
		newState.Winner = &winner
		newState.Loser = pickLoser(newState, wi, c.Loser)
		newState.FinishedAt = c.FinishedAt
		if newState.FinishedAt == 0 {
			newState.FinishedAt = c.Now
		}
		return []Event{matchEvent(EvtFinished, newState)}, newState, nil

	case ResetMatch:
		newState := NewMatchState()
		return []Event{matchEvent(EvtReset, newState)}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// pickLoser honours a reported loser that raced in the match and is not the
// winner; otherwise it eliminates down to the slowest remaining player.
func pickLoser(s MatchState, winnerIdx int, reported *Player) *MatchPlayer {
	if reported != nil && reported.ID != s.Players[winnerIdx].ID {
		if i := playerIndex(s, reported.ID); i >= 0 {
			loser := s.Players[i]
			return &loser
		}
	}

	li := -1
	for i, p := range s.Players {
		if i == winnerIdx {
			continue
		}
		if li < 0 || p.Progress < s.Players[li].Progress {
			li = i
		}
	}
	if li < 0 {
		return nil
	}
	loser := s.Players[li]
	return &loser
}

func playerIndex(s MatchState, id string) int {
	return slices.IndexFunc(s.Players, func(p MatchPlayer) bool { return p.ID == id })
}

func matchEvent(t EventType, s MatchState) Event {
	snap := s.Clone()
	return Event{Type: t, Match: &snap}
}

// Match is a reducer instance owning one match's lifecycle. Callers must
// serialize access.
type Match struct {
	state MatchState
}

func NewMatch() *Match {
	return &Match{state: NewMatchState()}
}

func (m *Match) Apply(cmd MatchCommand) ([]Event, error) {
	events, next, err := ApplyMatch(m.state, cmd)
	if err != nil {
		return nil, err
	}
	m.state = next
	return events, nil
}

func (m *Match) Start(players []Player, prompt string, startAt, now int64) (Event, error) {
	return first(m.Apply(StartMatch{Players: players, Prompt: prompt, StartAt: startAt, Now: now}))
}

func (m *Match) Tick(now int64) (Event, error) {
	return first(m.Apply(Tick{Now: now}))
}

func (m *Match) UpdateProgress(playerID string, progress, wpm, accuracy float64) (Event, error) {
	return first(m.Apply(UpdateProgress{PlayerID: playerID, Progress: progress, WPM: wpm, Accuracy: accuracy}))
}

func (m *Match) Finish(winner Player, loser *Player, now int64) (Event, error) {
	return first(m.Apply(FinishMatch{Winner: winner, Loser: loser, Now: now}))
}

func (m *Match) Reset() Event {
	ev, _ := first(m.Apply(ResetMatch{}))
	return ev
}

// Snapshot returns a deep copy of the current state.
func (m *Match) Snapshot() MatchState { return m.state.Clone() }
