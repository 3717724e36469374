package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"battle-room-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRoomInput carries the host-chosen room settings.
type CreateRoomInput struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Scope      string `json:"scope"`
}

// CreateRoom opens a waiting room with the creator as host.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput, player domain.Player) (*domain.Room, error) {
	player, err := validatePlayer(player)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLength {
		return nil, domain.ErrInvalidRoomName
	}
	if in.MaxPlayers < domain.MinPlayers || in.MaxPlayers > domain.MaxPlayers {
		return nil, domain.ErrInvalidMaxPlayers
	}
	return s.createRoom(ctx, name, in.MaxPlayers, strings.TrimSpace(in.Scope), false, player)
}

func (s *RoomService) createRoom(ctx context.Context, name string, maxPlayers int, scope string, matchmaking bool, player domain.Player) (*domain.Room, error) {
	now := s.now()
	if scope == "" {
		scope = s.settings.DefaultScope
	}
	room := &domain.Room{
		ID:           uuid.NewString(),
		Name:         name,
		MaxPlayers:   maxPlayers,
		Status:       domain.StatusWaiting,
		Matchmaking:  matchmaking,
		Scope:        scope,
		HostID:       player.UserID,
		TimeLimit:    s.settings.TimeLimit,
		CreatedAt:    now,
		LastActivity: now,
		Version:      1,
		Players: map[string]*domain.Participant{
			player.UserID: {
				UserID:      player.UserID,
				DisplayName: player.DisplayName,
				Ready:       matchmaking,
				Connected:   true,
				IsHost:      true,
				JoinedAt:    now,
				Answers:     map[int]domain.Answer{},
			},
		},
	}

	attempts := s.settings.CodeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate join code: %w", err)
		}
		room.Code = code
		err = s.store.Create(ctx, room)
		if errors.Is(err, domain.ErrCodeTaken) {
			s.logger.Debug("join code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		s.markOnline(ctx, room.ID, player.UserID)
		s.logger.Info("room created",
			zap.String("roomId", room.ID),
			zap.String("code", room.Code),
			zap.String("host", player.UserID),
			zap.Bool("matchmaking", matchmaking),
		)
		return room.Clone(), nil
	}
	s.logger.Warn("join code generation exhausted", zap.Int("attempts", attempts))
	return nil, domain.ErrCodeGenerationExhausted
}

// JoinRoom seats a player in the room behind a join code. Joining a room the
// player already belongs to reconnects them instead.
func (s *RoomService) JoinRoom(ctx context.Context, rawCode string, player domain.Player) (*domain.Room, error) {
	player, err := validatePlayer(player)
	if err != nil {
		return nil, err
	}
	code, err := NormalizeJoinCode(rawCode)
	if err != nil {
		return nil, err
	}
	found, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	room, err := s.admitPlayer(ctx, found.ID, player)
	if err != nil {
		return nil, err
	}
	s.logger.Info("player joined", zap.String("roomId", room.ID), zap.String("userId", player.UserID))
	return room, nil
}

func (s *RoomService) admitPlayer(ctx context.Context, roomID string, player domain.Player) (*domain.Room, error) {
	now := s.now()
	room, action, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		if p, ok := r.Players[player.UserID]; ok {
			if p.Connected || r.Status == domain.StatusFinished {
				return Skip, nil
			}
			p.Connected = true
			r.LastActivity = now
			return Save, nil
		}
		if r.Full() {
			return Skip, domain.ErrRoomFull
		}
		if r.Status != domain.StatusWaiting {
			return Skip, domain.ErrGameInProgress
		}
		r.Players[player.UserID] = &domain.Participant{
			UserID:      player.UserID,
			DisplayName: player.DisplayName,
			Ready:       r.Matchmaking,
			Connected:   true,
			JoinedAt:    now,
			Answers:     map[int]domain.Answer{},
		}
		r.LastActivity = now
		return Save, nil
	})
	if err != nil {
		return nil, err
	}
	s.markOnline(ctx, room.ID, player.UserID)
	if action == Save {
		s.maybeAutoStart(room)
		s.armDeadline(room)
	}
	return room, nil
}

// ToggleReady flips the participant's ready flag while the room is waiting.
func (s *RoomService) ToggleReady(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	now := s.now()
	room, _, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		p, ok := r.Players[userID]
		if !ok {
			return Skip, domain.ErrPlayerNotInRoom
		}
		if r.Status != domain.StatusWaiting {
			return Skip, domain.ErrGameInProgress
		}
		p.Ready = !p.Ready
		r.LastActivity = now
		return Save, nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeAutoStart(room)
	return room, nil
}

// LeaveRoom removes a participant. A departing host hands over to the connected
// participant who joined first, and a room nobody connected remains in is deleted.
// Leaving twice is a no-op.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	now := s.now()
	var t transition
	var newHost string
	room, action, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		t, newHost = transition{}, ""
		leaver, ok := r.Players[userID]
		if !ok {
			return Skip, nil
		}
		delete(r.Players, userID)
		if len(r.Players) == 0 {
			return Remove, nil
		}
		if leaver.IsHost || r.HostID == userID {
			next := earliestConnected(r)
			if next == nil {
				return Remove, nil
			}
			next.IsHost = true
			r.HostID = next.UserID
			newHost = next.UserID
		}
		if r.ConnectedCount() == 0 {
			return Remove, nil
		}
		t.advanced, t.finished = advance(r, now)
		r.LastActivity = now
		return Save, nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.markOffline(ctx, roomID, userID)

	switch action {
	case Remove:
		s.logger.Info("room deleted after leave", zap.String("roomId", roomID), zap.String("userId", userID))
	case Save:
		fields := []zap.Field{zap.String("roomId", roomID), zap.String("userId", userID)}
		if newHost != "" {
			fields = append(fields, zap.String("newHost", newHost))
		}
		s.logger.Info("player left", fields...)
		s.settle(room, t)
	}
	return nil
}

// Connect attaches a live session to an existing participant.
func (s *RoomService) Connect(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	now := s.now()
	room, action, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		p, ok := r.Players[userID]
		if !ok {
			return Skip, domain.ErrPlayerNotInRoom
		}
		if p.Connected {
			return Skip, nil
		}
		p.Connected = true
		r.LastActivity = now
		return Save, nil
	})
	if err != nil {
		return nil, err
	}
	s.markOnline(ctx, roomID, userID)
	if action == Save {
		s.maybeAutoStart(room)
		s.armDeadline(room)
	}
	return room, nil
}

// Disconnect marks a participant as gone without removing them; they keep their
// seat, score and answers and may reconnect until the room is deleted.
func (s *RoomService) Disconnect(ctx context.Context, roomID, userID string) error {
	s.markOffline(ctx, roomID, userID)
	now := s.now()
	var t transition
	room, action, err := s.store.Update(ctx, roomID, func(r *domain.Room) (Action, error) {
		t = transition{}
		p, ok := r.Players[userID]
		if !ok || !p.Connected {
			return Skip, nil
		}
		p.Connected = false
		t.advanced, t.finished = advance(r, now)
		r.LastActivity = now
		return Save, nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if action == Save {
		s.logger.Info("player disconnected", zap.String("roomId", roomID), zap.String("userId", userID))
		s.settle(room, t)
	}
	return nil
}

// RoomExists is checked before subscribing.
func (s *RoomService) RoomExists(ctx context.Context, roomID string) (bool, error) {
	_, err := s.store.Get(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Room returns the current snapshot of a room.
func (s *RoomService) Room(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.store.Get(ctx, roomID)
}

// Heartbeat keeps the participant's presence record alive.
func (s *RoomService) Heartbeat(ctx context.Context, roomID, userID string) error {
	if s.presence == nil {
		return nil
	}
	return s.presence.Register(ctx, roomID, userID)
}

func (s *RoomService) markOnline(ctx context.Context, roomID, userID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Register(ctx, roomID, userID); err != nil {
		s.logger.Warn("register presence", zap.String("roomId", roomID), zap.String("userId", userID), zap.Error(err))
	}
}

func (s *RoomService) markOffline(ctx context.Context, roomID, userID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Release(ctx, roomID, userID); err != nil {
		s.logger.Warn("release presence", zap.String("roomId", roomID), zap.String("userId", userID), zap.Error(err))
	}
}

func earliestConnected(r *domain.Room) *domain.Participant {
	for _, p := range r.Participants() {
		if p.Connected {
			return p
		}
	}
	return nil
}

func validatePlayer(p domain.Player) (domain.Player, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.UserID == "" || p.DisplayName == "" || utf8.RuneCountInString(p.DisplayName) > domain.MaxNameLength {
		return p, domain.ErrInvalidPlayer
	}
	return p, nil
}
