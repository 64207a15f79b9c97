package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/monatype-server/internal/engine"
	"github.com/DoyleJ11/monatype-server/internal/hub"
	"github.com/DoyleJ11/monatype-server/internal/lobby"
	"github.com/DoyleJ11/monatype-server/internal/types"
)

const (
	writeTimeout   = 3 * time.Second
	pingPeriod     = 30 * time.Second
	outboxSize     = 32
	maxMessageSize = 4096
)

type Options struct {
	// OriginPatterns are passed to websocket.AcceptOptions.
	OriginPatterns []string
	Now            func() time.Time
}

func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	log = log.Named("ws")
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := strings.ToUpper(strings.TrimSpace(q.Get("room")))
		if code == "" {
			code = strings.ToUpper(strings.TrimSpace(q.Get("code")))
		}
		if code == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxMessageSize)

		playerID := q.Get("id")
		if playerID == "" {
			playerID = uuid.NewString()
		}
		name := strings.TrimSpace(q.Get("name"))
		if name == "" {
			name = "Player " + playerID[:min(4, len(playerID))]
		}
		me := types.Conn{PlayerID: playerID, Name: name, Room: code, JoinedAt: opts.Now().UnixMilli()}
		clog := log.With(zap.String("room", code), zap.String("player", playerID))

		// Joining first keeps the room open while we subscribe to it.
		if err := join(r.Context(), h, me.Player(), true); err != nil {
			clog.Warn("join failed", zap.Error(err))
			conn.Close(websocket.StatusPolicyViolation, "join rejected")
			return
		}
		defer func() {
			// The request context is gone by now.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := leave(ctx, h, me.Player(), true); err != nil && !errors.Is(err, hub.ErrHubClosed) {
				clog.Debug("leave failed", zap.Error(err))
			}
			clog.Info("client disconnected")
		}()

		lb, err := hub.Request(r.Context(), h, func(reply chan *lobby.Lobby) hub.HubMsg {
			return hub.GetLobby{Code: code, Reply: reply}
		})
		if err != nil || lb == nil {
			conn.Close(websocket.StatusTryAgainLater, "room closed")
			return
		}

		clientID := uuid.NewString()
		out := make(chan lobby.Snapshot, outboxSize)
		if !lb.Send(lobby.Subscribe{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusTryAgainLater, "room closed")
			return
		}
		defer func() { lb.Send(lobby.Unsubscribe{ClientID: clientID}) }()

		// Welcome goes out before the writer starts so it always precedes sync.
		wctx, wcancel := context.WithTimeout(r.Context(), writeTimeout)
		err = wsjson.Write(wctx, conn, types.Welcome(code, playerID))
		wcancel()
		if err != nil {
			return
		}

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		direct := make(chan types.ServerMessage, 4)
		go func() {
			defer writeCancel()
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				var msg types.ServerMessage
				select {
				case <-writeCtx.Done():
					return
				case <-ping.C:
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					err := conn.Ping(ctx)
					cancel()
					if err != nil {
						clog.Debug("ping failed", zap.Error(err))
						return
					}
					continue
				case m := <-direct:
					msg = m
				case snap, ok := <-out:
					if !ok {
						// Dropped by the room, or the room closed.
						conn.Close(websocket.StatusGoingAway, "room closed")
						return
					}
					msg = types.FromSnapshot(snap.Version, snap.Event)
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := wsjson.Write(ctx, conn, msg)
				cancel()
				if err != nil {
					clog.Debug("write failed", zap.Error(err))
					return
				}
			}
		}()
		clog.Info("client connected")

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			in, err := types.Decode(data, me)
			if err != nil {
				clog.Debug("rejected inbound", zap.Error(err))
				select {
				case direct <- types.Error(err):
				default:
				}
				continue
			}

			switch m := in.(type) {
			case types.PresenceInbound:
				err = presence(r.Context(), h, m.Cmd)
			case types.MatchInbound:
				if !lb.Send(lobby.FromClient{Cmd: m.Cmd}) {
					return
				}
			}
			if err != nil {
				select {
				case direct <- types.Error(err):
				default:
				}
			}
		}
	}
}

func presence(ctx context.Context, h *hub.Hub, cmd engine.PresenceCommand) error {
	switch c := cmd.(type) {
	case engine.JoinRoom:
		return join(ctx, h, c.Player, false)
	case engine.LeaveRoom:
		return leave(ctx, h, c.Player, false)
	}
	return engine.ErrUnsupportedCommand
}

// join and leave with session set track this connection's lifetime, so a
// player with several open sockets stays present until the last one closes.
func join(ctx context.Context, h *hub.Hub, p engine.Player, session bool) error {
	err, reqErr := hub.Request(ctx, h, func(reply chan error) hub.HubMsg {
		return hub.PlayerJoin{Player: p, Reply: reply, Session: session}
	})
	return multierr.Combine(reqErr, err)
}

func leave(ctx context.Context, h *hub.Hub, p engine.Player, session bool) error {
	err, reqErr := hub.Request(ctx, h, func(reply chan error) hub.HubMsg {
		return hub.PlayerLeave{Player: p, Reply: reply, Session: session}
	})
	return multierr.Combine(reqErr, err)
}
