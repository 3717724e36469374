package app

import (
	"context"
	"errors"

	"battle-room-service/internal/domain"
	"go.uber.org/zap"
)

const (
	matchmakingCapacity = 2
	matchmakingRoomName = "Quick Match"
)

// MatchResult is the room a matchmaking request landed in.
type MatchResult struct {
	Room   *domain.Room `json:"room"`
	IsHost bool         `json:"isHost"`
}

// FindRandomMatch pairs the player with someone already waiting, or opens a new
// matchmaking room for them. The scan is only a hint: the slot is claimed by an
// atomic update that refuses full or started rooms, and a refused claim moves on
// to the next candidate.
func (s *RoomService) FindRandomMatch(ctx context.Context, player domain.Player) (MatchResult, error) {
	player, err := validatePlayer(player)
	if err != nil {
		return MatchResult{}, err
	}
	candidates, err := s.store.ListMatchmaking(ctx)
	if err != nil {
		return MatchResult{}, err
	}

	for _, candidate := range candidates {
		if _, ok := candidate.Players[player.UserID]; !ok {
			continue
		}
		room, err := s.admitPlayer(ctx, candidate.ID, player)
		if errors.Is(err, domain.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return MatchResult{}, err
		}
		return MatchResult{Room: room, IsHost: room.HostID == player.UserID}, nil
	}

	for _, candidate := range candidates {
		if candidate.Status != domain.StatusWaiting || len(candidate.Players) >= matchmakingCapacity {
			continue
		}
		room, err := s.admitPlayer(ctx, candidate.ID, player)
		switch {
		case err == nil:
			s.logger.Info("match found", zap.String("roomId", room.ID), zap.String("userId", player.UserID))
			return MatchResult{Room: room}, nil
		case errors.Is(err, domain.ErrRoomFull),
			errors.Is(err, domain.ErrGameInProgress),
			errors.Is(err, domain.ErrRoomNotFound):
			s.logger.Debug("lost matchmaking slot", zap.String("roomId", candidate.ID), zap.Error(err))
		default:
			return MatchResult{}, err
		}
	}

	room, err := s.createRoom(ctx, matchmakingRoomName, matchmakingCapacity, "", true, player)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Room: room, IsHost: true}, nil
}

// CancelMatchmaking withdraws the player from any matchmaking room they wait in
// alone. If an opponent got in first the room is left alone and the caller sees
// the match through its subscription.
func (s *RoomService) CancelMatchmaking(ctx context.Context, userID string) error {
	rooms, err := s.store.ListMatchmaking(ctx)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if _, ok := room.Players[userID]; !ok {
			continue
		}
		_, action, err := s.store.Update(ctx, room.ID, func(r *domain.Room) (Action, error) {
			if !r.Matchmaking || r.Status != domain.StatusWaiting {
				return Skip, nil
			}
			if _, ok := r.Players[userID]; !ok || len(r.Players) > 1 {
				return Skip, nil
			}
			return Remove, nil
		})
		if errors.Is(err, domain.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if action == Remove {
			s.markOffline(ctx, room.ID, userID)
			s.logger.Info("matchmaking cancelled", zap.String("roomId", room.ID), zap.String("userId", userID))
		}
	}
	return nil
}
