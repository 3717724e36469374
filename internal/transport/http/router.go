package http

import (
	"net/http"
	"time"

	"battle-room-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the REST API and the websocket endpoint.
func NewRouter(service *app.RoomService, ws *WSHandler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	rooms := NewRoomHandler(service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", rooms.CreateRoom)
		r.Post("/join", rooms.JoinRoom)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", rooms.GetRoom)
			r.Head("/", rooms.RoomExists)
			r.Post("/ready", rooms.ToggleReady)
			r.Post("/start", rooms.StartBattle)
			r.Post("/leave", rooms.LeaveRoom)
			r.Post("/answers", rooms.SubmitAnswer)
		})
	})
	r.Post("/matchmaking", rooms.FindMatch)
	r.Delete("/matchmaking", rooms.CancelMatch)
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}
