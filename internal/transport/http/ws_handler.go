package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat = 10 * time.Second
	writeWait        = 5 * time.Second
)

type WSHandler struct {
	service   *app.RoomService
	logger    *zap.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewWSHandler(service *app.RoomService, logger *zap.Logger, heartbeat time.Duration) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &WSHandler{
		service:   service,
		logger:    logger,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type matchmakingTimeoutPayload struct {
	RoomID string `json:"roomId"`
}

// ServeWS attaches a live session to an existing participant. The session
// streams every room snapshot and accepts answer, ready, start and leave
// commands. Closing the socket disconnects the participant without removing them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	// Refuse before the upgrade so clients get a plain HTTP status.
	if _, err := h.service.Connect(r.Context(), roomID, userID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		h.disconnect(r.Context(), roomID, userID)
		return
	}
	defer conn.Close()
	defer h.disconnect(r.Context(), roomID, userID)

	sub, err := h.service.Subscribe(r.Context(), roomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorOf(err)})
		return
	}
	defer sub.Close()

	log := h.logger.With(zap.String("roomId", roomID), zap.String("userId", userID))
	log.Debug("ws session opened")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		h.pump(r.Context(), conn, sub, userID, send, closeSignals, log)
	}()

	readWait := 3 * h.heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if done := h.handle(r.Context(), roomID, userID, inbound, send, closeSignals); done {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	log.Debug("ws session closed")
}

// pump forwards snapshots, keeps presence alive, and tells a lone matchmaking
// waiter when nobody showed up in time. The room stays open until the waiter
// cancels or an opponent arrives.
func (h *WSHandler) pump(ctx context.Context, conn *websocket.Conn, sub *app.Subscription, userID string, send chan<- outboundMessage[any], closeSignals <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	window := h.service.Settings().MatchmakingTimeout
	var matchTimer *time.Timer
	var matchC <-chan time.Time
	defer func() {
		if matchTimer != nil {
			matchTimer.Stop()
		}
	}()

	for {
		select {
		case room, ok := <-sub.Updates():
			if !ok {
				return
			}
			if matchTimer == nil && window > 0 && room.AwaitingOpponent() {
				wait := window - time.Since(room.CreatedAt)
				if wait < 0 {
					wait = 0
				}
				matchTimer = time.NewTimer(wait)
				matchC = matchTimer.C
			}
			select {
			case send <- outboundMessage[any]{Type: "room", Payload: presentRoom(room)}:
			case <-closeSignals:
				return
			}
		case <-matchC:
			matchC = nil
			room, err := h.service.Room(ctx, sub.RoomID)
			if err != nil || !room.MatchmakingExpired(time.Now(), window) {
				continue
			}
			log.Debug("matchmaking window elapsed", zap.String("roomId", sub.RoomID))
			select {
			case send <- outboundMessage[any]{Type: "matchmakingTimeout", Payload: matchmakingTimeoutPayload{RoomID: sub.RoomID}}:
			case <-closeSignals:
				return
			}
		case <-ticker.C:
			if err := h.service.Heartbeat(ctx, sub.RoomID, userID); err != nil {
				log.Warn("heartbeat", zap.Error(err))
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("ws ping failed", zap.Error(err))
			}
		case <-closeSignals:
			return
		}
	}
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Value         string `json:"value"`
}

// handle runs one client command. It reports true when the session should end.
func (h *WSHandler) handle(ctx context.Context, roomID, userID string, in inboundMessage, send chan<- outboundMessage[any], closeSignals <-chan struct{}) bool {
	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}
	fail := func(err error) {
		reply(outboundMessage[any]{Type: "error", Payload: errorOf(err)})
	}

	switch in.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "invalid_payload", Message: "invalid answer payload"}})
			return false
		}
		res, err := h.service.SubmitAnswer(ctx, roomID, payload.QuestionIndex, userID, payload.Value)
		if err != nil {
			fail(err)
			return false
		}
		reply(outboundMessage[any]{Type: "answerResult", Payload: res})
	case "ready":
		if _, err := h.service.ToggleReady(ctx, roomID, userID); err != nil {
			fail(err)
		}
	case "start":
		if _, err := h.service.StartBattle(ctx, roomID, userID); err != nil {
			fail(err)
		}
	case "leave":
		if err := h.service.LeaveRoom(ctx, roomID, userID); err != nil {
			fail(err)
			return false
		}
		return true
	default:
		reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}})
	}
	return false
}

func (h *WSHandler) disconnect(ctx context.Context, roomID, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeWait)
	defer cancel()
	if err := h.service.Disconnect(ctx, roomID, userID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		h.logger.Warn("disconnect", zap.String("roomId", roomID), zap.String("userId", userID), zap.Error(err))
	}
}

func errorOf(err error) errorPayload {
	_, payload := classify(err)
	return payload
}
