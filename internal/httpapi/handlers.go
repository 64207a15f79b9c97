package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/monatype-server/internal/engine"
	"github.com/DoyleJ11/monatype-server/internal/hub"
	"github.com/DoyleJ11/monatype-server/internal/lobby"
	"github.com/DoyleJ11/monatype-server/internal/store"
)

// Unambiguous: no I, O, 0 or 1.
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	maxCodeAttempts = 16
	stateTimeout    = 2 * time.Second
	qrSize          = 256
)

// Pinger is implemented by stores backed by a database.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	code := make([]byte, n)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

type roomResponse struct {
	Code       string            `json:"code"`
	Version    int               `json:"version"`
	NumClients int               `json:"clients"`
	Players    []engine.Player   `json:"players"`
	State      engine.MatchState `json:"state"`
	InviteURL  string            `json:"inviteUrl,omitempty"`
}

func CreateLobby(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for range maxCodeAttempts {
			c, err := GenerateCode(d.CodeLength)
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			lb, err := hub.Request(r.Context(), d.Hub, func(reply chan *lobby.Lobby) hub.HubMsg {
				return hub.CreateLobby{Code: c, Reply: reply}
			})
			if err != nil {
				http.Error(w, "failed to create lobby", http.StatusServiceUnavailable)
				return
			}
			if lb != nil {
				code = c
				break
			}
			d.Logger.Debug("collision on code, regenerating", zap.String("code", c))
		}
		if code == "" {
			http.Error(w, "failed to create lobby", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code      string `json:"code"`
			InviteURL string `json:"inviteUrl"`
		}{Code: code, InviteURL: d.inviteURL(code)})
	}
}

func ListRooms(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Request(r.Context(), d.Hub, func(reply chan []string) hub.HubMsg {
			return hub.ActiveRooms{Reply: reply}
		})
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if rooms == nil {
			rooms = []string{}
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []string `json:"rooms"`
		}{Rooms: rooms})
	}
}

func GetRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		lb, err := hub.Request(r.Context(), d.Hub, func(reply chan *lobby.Lobby) hub.HubMsg {
			return hub.GetLobby{Code: code, Reply: reply}
		})
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		view, err := roomView(r.Context(), lb)
		if err != nil {
			// Closed between the lookup and the query.
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		players := view.Roster
		if players == nil {
			players = []engine.Player{}
		}
		writeJSON(w, http.StatusOK, roomResponse{
			Code:       view.Room,
			Version:    view.Version,
			NumClients: view.NumClients,
			Players:    players,
			State:      view.Match,
			InviteURL:  d.inviteURL(view.Room),
		})
	}
}

func roomView(ctx context.Context, lb *lobby.Lobby) (lobby.View, error) {
	reply := make(chan lobby.View, 1)
	if !lb.Send(lobby.GetState{Reply: reply}) {
		return lobby.View{}, errors.New("room closed")
	}
	ctx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	select {
	case v := <-reply:
		return v, nil
	case <-lb.Done():
		return lobby.View{}, errors.New("room closed")
	case <-ctx.Done():
		return lobby.View{}, ctx.Err()
	}
}

func Results(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		results, err := d.Store.Recent(r.Context(), code, d.ResultsLimit)
		if err != nil {
			d.Logger.Error("load results", zap.String("room", code), zap.Error(err))
			http.Error(w, "failed to load results", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []store.Result{}
		}
		writeJSON(w, http.StatusOK, struct {
			Room    string         `json:"room"`
			Results []store.Result `json:"results"`
		}{Room: code, Results: results})
	}
}

// InviteQR renders the room's invite link as a PNG.
func InviteQR(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(d.inviteURL(roomCode(r)), qrcode.Medium, qrSize)
		if err != nil {
			d.Logger.Error("encode qr", zap.Error(err))
			http.Error(w, "failed to render qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

func Healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := d.Store.(Pinger); ok {
			if err := p.Ping(r.Context(), time.Second); err != nil {
				d.Logger.Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func roomCode(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "code"))
}

func (d Deps) inviteURL(code string) string {
	return strings.TrimRight(d.PublicURL, "/") + "/?room=" + url.QueryEscape(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
