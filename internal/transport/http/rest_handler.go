package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"battle-room-service/internal/app"
	"battle-room-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Caller identity is issued upstream; these headers carry it.
const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
)

type RoomHandler struct {
	service *app.RoomService
	logger  *zap.Logger
}

func NewRoomHandler(service *app.RoomService, logger *zap.Logger) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{service: service, logger: logger}
}

type joinRequest struct {
	Code string `json:"code"`
}

type answerRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Value         string `json:"value"`
}

func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var in app.CreateRoomInput
	if !decode(w, r, &in) {
		return
	}
	room, err := h.service.CreateRoom(r.Context(), in, playerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, presentRoom(room))
}

func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var in joinRequest
	if !decode(w, r, &in) {
		return
	}
	room, err := h.service.JoinRoom(r.Context(), in.Code, playerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentRoom(room))
}

func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.Room(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentRoom(room))
}

func (h *RoomHandler) RoomExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.RoomExists(r.Context(), chi.URLParam(r, "roomID"))
	switch {
	case err != nil:
		status, _ := classify(err)
		w.WriteHeader(status)
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *RoomHandler) ToggleReady(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	room, err := h.service.ToggleReady(r.Context(), chi.URLParam(r, "roomID"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentRoom(room))
}

func (h *RoomHandler) StartBattle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	room, err := h.service.StartBattle(r.Context(), chi.URLParam(r, "roomID"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentRoom(room))
}

func (h *RoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.service.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in answerRequest
	if !decode(w, r, &in) {
		return
	}
	res, err := h.service.SubmitAnswer(r.Context(), chi.URLParam(r, "roomID"), in.QuestionIndex, userID, in.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RoomHandler) FindMatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.FindRandomMatch(r.Context(), playerFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res.Room = presentRoom(res.Room)
	writeJSON(w, http.StatusOK, res)
}

func (h *RoomHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelMatchmaking(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "invalid_body", Message: "malformed JSON body"})
		return false
	}
	return true
}

func playerFrom(r *http.Request) domain.Player {
	return domain.Player{
		UserID:      r.Header.Get(headerUserID),
		DisplayName: r.Header.Get(headerUserName),
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeError(w, domain.ErrInvalidPlayer)
		return "", false
	}
	return userID, true
}
