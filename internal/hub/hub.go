package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/monatype-server/internal/engine"
	"github.com/DoyleJ11/monatype-server/internal/lobby"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateLobby replies nil when Code is already taken.
type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// PlayerJoin runs the presence reducer and forwards the new roster to the
// player's room, creating the room if needed. Reply may be nil. Session
// marks a join made by a live connection; those are counted per (id, room).
type PlayerJoin struct {
	Player  engine.Player
	Reply   chan error
	Session bool
}

// PlayerLeave removes the player; a room left empty is shut down. A Session
// leave only removes the player once their last connection is gone.
type PlayerLeave struct {
	Player  engine.Player
	Reply   chan error
	Session bool
}

type ActiveRooms struct {
	Reply chan []string
}

type RosterOf struct {
	Code  string
	Reply chan []engine.Player
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (PlayerJoin) isHubMsg()  {}
func (PlayerLeave) isHubMsg() {}
func (ActiveRooms) isHubMsg() {}
func (RosterOf) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Logger *zap.Logger
	// Lobby is the template every room is created with.
	Lobby lobby.Options
	// IdleTimeout is how long a room without members survives.
	IdleTimeout time.Duration
	SweepEvery  time.Duration
}

type room struct {
	lobby     *lobby.Lobby
	createdAt time.Time
}

type sessionKey struct{ id, room string }

type Hub struct {
	inbox    chan HubMsg
	lobbies  map[string]room
	sessions map[sessionKey]int
	presence *engine.Presence
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Lobby.Logger == nil {
		opts.Lobby.Logger = opts.Logger
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Hour
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = 10 * time.Minute
	}

	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		lobbies:  make(map[string]room),
		sessions: make(map[sessionKey]int),
		presence: engine.NewPresence(),
		opts:     opts,
		log:      opts.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

// Send queues m. It reports false once the hub has shut down.
func (h *Hub) Send(m HubMsg) bool {
	select {
	case <-h.ctx.Done():
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Request sends the message built around a fresh reply channel and waits for
// the answer.
func Request[T any](ctx context.Context, h *Hub, build func(reply chan T) HubMsg) (T, error) {
	var zero T
	reply := make(chan T, 1)
	if !h.Send(build(reply)) {
		return zero, ErrHubClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	}
}

func (h *Hub) loop() {
	sweep := time.NewTicker(h.opts.SweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep.C:
			h.sweepIdle(time.Now())

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if _, ok := h.lobbies[msg.Code]; ok {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.open(msg.Code)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code].lobby // May be nil

			case PlayerJoin:
				err := h.join(msg.Player)
				if err == nil && msg.Session {
					h.sessions[sessionKey{msg.Player.ID, msg.Player.Room}]++
				}
				h.reply(msg.Reply, err)

			case PlayerLeave:
				if msg.Session && h.releaseSession(msg.Player) > 0 {
					h.reply(msg.Reply, nil)
					break
				}
				h.reply(msg.Reply, h.leave(msg.Player))

			case ActiveRooms:
				msg.Reply <- h.presence.ActiveRooms()

			case RosterOf:
				msg.Reply <- h.presence.PlayersInRoom(msg.Code)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) join(p engine.Player) error {
	ev, err := h.presence.HandleJoin(p)
	if err != nil {
		h.log.Debug("join rejected", zap.String("player", p.ID), zap.String("room", p.Room), zap.Error(err))
		return err
	}
	r, ok := h.lobbies[p.Room]
	if !ok {
		h.open(p.Room)
		r = h.lobbies[p.Room]
	}
	r.lobby.Send(lobby.Roster{Event: ev})
	h.log.Info("player joined", zap.String("player", p.ID), zap.String("room", p.Room), zap.Int("members", len(ev.Roster)))
	return nil
}

// releaseSession drops one connection of p and returns how many remain.
func (h *Hub) releaseSession(p engine.Player) int {
	key := sessionKey{p.ID, p.Room}
	n := h.sessions[key] - 1
	if n > 0 {
		h.sessions[key] = n
		h.log.Debug("connection closed, player still connected",
			zap.String("player", p.ID), zap.String("room", p.Room), zap.Int("connections", n))
		return n
	}
	delete(h.sessions, key)
	return 0
}

func (h *Hub) leave(p engine.Player) error {
	ev, err := h.presence.HandleLeave(p)
	if err != nil {
		h.log.Debug("leave rejected", zap.String("player", p.ID), zap.String("room", p.Room), zap.Error(err))
		return err
	}
	if r, ok := h.lobbies[p.Room]; ok {
		r.lobby.Send(lobby.Roster{Event: ev})
	}
	h.log.Info("player left", zap.String("player", p.ID), zap.String("room", p.Room), zap.Int("members", len(ev.Roster)))
	if len(ev.Roster) == 0 {
		h.close(p.Room)
	}
	return nil
}

func (h *Hub) open(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, h.opts.Lobby)
	h.lobbies[code] = room{lobby: lb, createdAt: time.Now()}
	h.log.Info("room opened", zap.String("room", code))
	return lb
}

func (h *Hub) close(code string) {
	r, ok := h.lobbies[code]
	if !ok {
		return
	}
	r.lobby.Send(lobby.Shutdown{})
	delete(h.lobbies, code)
	h.log.Info("room closed", zap.String("room", code))
}

func (h *Hub) sweepIdle(now time.Time) {
	for code, r := range h.lobbies {
		if len(h.presence.PlayersInRoom(code)) == 0 && now.Sub(r.createdAt) > h.opts.IdleTimeout {
			h.close(code)
		}
	}
}

func (h *Hub) reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (h *Hub) shutdown() {
	for code := range h.lobbies {
		h.close(code)
	}
	h.cancel()
}
