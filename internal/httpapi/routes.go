package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/monatype-server/internal/hub"
	"github.com/DoyleJ11/monatype-server/internal/store"
	"github.com/DoyleJ11/monatype-server/internal/ws"
)

type Deps struct {
	Hub    *hub.Hub
	Store  store.Store
	Logger *zap.Logger

	PublicURL    string
	CodeLength   int
	ResultsLimit int
	WS           ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	base := d.Logger
	d.Logger = base.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(d))
	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", CreateLobby(d))
		r.Get("/", ListRooms(d))
		r.Get("/{code}", GetRoom(d))
		r.Get("/{code}/results", Results(d))
		r.Get("/{code}/qr.png", InviteQR(d))
	})
	r.Get("/ws", ws.Handler(d.Hub, base, d.WS))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
