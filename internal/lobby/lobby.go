package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/monatype-server/internal/engine"
	"github.com/DoyleJ11/monatype-server/internal/store"
)

// EvtSync is sent to a subscriber right after it joins and carries both the
// roster and the match.
const EvtSync engine.EventType = "sync"

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	Cmd engine.MatchCommand
}

func (FromClient) isLobbyMsg() {}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Subscribe) isLobbyMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isLobbyMsg() {}

// Roster carries a presence:updated event computed by the hub.
type Roster struct {
	Event engine.Event
}

func (Roster) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type countdownFired struct{ gen int }

func (countdownFired) isLobbyMsg() {}

type Snapshot struct {
	Version int
	Event   engine.Event
}

type View struct {
	Room       string
	Version    int
	NumClients int
	Roster     []engine.Player
	Match      engine.MatchState
}

type Options struct {
	Logger  *zap.Logger
	Results store.Store
	// Countdown is added to now when start carries no start time. Zero
	// starts matches immediately.
	Countdown time.Duration
	Now       func() time.Time
}

type Lobby struct {
	room    string
	inbox   chan Msg
	match   *engine.Match
	roster  []engine.Player
	version int
	clients map[string]chan Snapshot
	opts    Options
	log     *zap.Logger

	timer    *time.Timer
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, room string, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Lobby{
		room:    room,
		inbox:   make(chan Msg, 64), // Small buffer
		match:   engine.NewMatch(),
		roster:  []engine.Player{},
		clients: make(map[string]chan Snapshot),
		opts:    opts,
		log:     opts.Logger.Named("lobby").With(zap.String("room", room)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) Room() string { return l.room }

// Send queues m for the lobby. It reports false once the lobby has shut down.
func (l *Lobby) Send(m Msg) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed when the lobby stops.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Subscribe:
				// Register client + send current snapshot immediately
				l.clients[msg.ClientID] = msg.Outbox
				match := l.match.Snapshot()
				initial := engine.Event{Type: EvtSync, Room: l.room, Roster: l.roster, Match: &match}
				select {
				case msg.Outbox <- Snapshot{Version: l.version, Event: initial}:
				default:
					close(msg.Outbox)
					delete(l.clients, msg.ClientID)
				}

			case Unsubscribe:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Roster:
				l.roster = msg.Event.Roster
				l.version++
				l.broadcast(Snapshot{Version: l.version, Event: msg.Event})

			case FromClient:
				l.apply(msg.Cmd)

			case countdownFired:
				if msg.gen != l.timerGen {
					break
				}
				l.timer = nil
				l.apply(engine.Tick{Now: l.now()})

			case GetState:
				msg.Reply <- View{
					Room:       l.room,
					Version:    l.version,
					NumClients: len(l.clients),
					Roster:     l.roster,
					Match:      l.match.Snapshot(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) apply(cmd engine.MatchCommand) {
	now := l.now()

	switch c := cmd.(type) {
	case engine.StartMatch:
		if len(c.Players) == 0 {
			c.Players = l.roster
		}
		if c.StartAt == 0 && l.opts.Countdown > 0 {
			c.StartAt = now + l.opts.Countdown.Milliseconds()
		}
		c.Now = now
		cmd = c
	case engine.FinishMatch:
		c.Now = now
		cmd = c
	case engine.ResetMatch:
		l.stopTimer()
	}

	events, err := l.match.Apply(cmd)
	if errors.Is(err, engine.ErrCountdownPending) {
		l.armTimer(l.match.Snapshot().StartAt)
		return
	}
	if err != nil {
		// Racing clients routinely lose; nothing is broadcast.
		level := zap.DebugLevel
		if errors.Is(err, engine.ErrUnsupportedCommand) {
			level = zap.WarnLevel
		}
		l.log.Check(level, "command rejected").Write(zap.Error(err))
		return
	}

	for _, ev := range events {
		ev.Room = l.room
		l.version++
		l.broadcast(Snapshot{Version: l.version, Event: ev})

		switch ev.Type {
		case engine.EvtStarted:
			if ev.Match.Status == engine.StatusCountdown {
				l.armTimer(ev.Match.StartAt)
			}
		case engine.EvtFinished:
			l.saveResult(*ev.Match)
		}
	}
}

func (l *Lobby) armTimer(startAt int64) {
	l.stopTimer()
	gen := l.timerGen
	d := time.Duration(startAt-l.now()) * time.Millisecond
	l.timer = time.AfterFunc(d, func() {
		l.Send(countdownFired{gen: gen})
	})
}

func (l *Lobby) stopTimer() {
	l.timerGen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) saveResult(s engine.MatchState) {
	if l.opts.Results == nil {
		return
	}
	r, ok := store.ResultFromMatch(l.room, s)
	if !ok {
		return
	}
	ctx := context.WithoutCancel(l.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := l.opts.Results.Save(ctx, r); err != nil {
			l.log.Error("save result", zap.Error(err))
			return
		}
		l.log.Info("match finished", zap.String("winner", r.WinnerID), zap.Float64("wpm", r.WinnerWPM))
	}()
}

func (l *Lobby) now() int64 { return l.opts.Now().UnixMilli() }

func (l *Lobby) shutdown() {
	l.stopTimer()
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}
