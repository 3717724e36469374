package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"battle-room-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidRoomName, http.StatusBadRequest, "invalid_room_name"},
	{domain.ErrInvalidMaxPlayers, http.StatusBadRequest, "invalid_max_players"},
	{domain.ErrInvalidJoinCode, http.StatusBadRequest, "invalid_join_code"},
	{domain.ErrInvalidPlayer, http.StatusBadRequest, "invalid_player"},
	{domain.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{domain.ErrRoomFull, http.StatusConflict, "room_full"},
	{domain.ErrGameInProgress, http.StatusConflict, "game_in_progress"},
	{domain.ErrNotEnoughPlayers, http.StatusConflict, "not_enough_players"},
	{domain.ErrPlayersNotReady, http.StatusConflict, "players_not_ready"},
	{domain.ErrNotHost, http.StatusConflict, "not_host"},
	{domain.ErrPlayerNotInRoom, http.StatusForbidden, "player_not_in_room"},
	{domain.ErrStoreContention, http.StatusServiceUnavailable, "store_contention"},
	{domain.ErrCodeGenerationExhausted, http.StatusServiceUnavailable, "code_generation_exhausted"},
}

// classify maps a service error to an HTTP status and a stable error code.
func classify(err error) (int, errorPayload) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, errorPayload{Code: e.code, Message: e.err.Error()}
		}
	}
	return http.StatusInternalServerError, errorPayload{Code: "internal", Message: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, payload := classify(err)
	writeJSON(w, status, payload)
}
