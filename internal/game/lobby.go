package game

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
	"photo-guess/internal/store"
)

const createRoomAttempts = 3

// CreateRoom opens a new lobby hosted by userID and seats the host.
func (s *Service) CreateRoom(ctx context.Context, userID uuid.UUID, nickname string) (domain.Room, domain.Player, error) {
	const op = "game.create_room"
	if userID == uuid.Nil {
		return domain.Room{}, domain.Player{}, domain.Unauthorized(op, "sign in first")
	}
	name, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}

	var room domain.Room
	for attempt := 0; ; attempt++ {
		code, err := s.store.GenerateRoomCode(ctx)
		if err != nil {
			return domain.Room{}, domain.Player{}, domain.Transient(op, err)
		}
		room = domain.Room{
			ID:              uuid.New(),
			Code:            code,
			HostID:          userID,
			MaxPlayers:      s.cfg.MaxPlayers,
			PhotosPerPlayer: s.cfg.PhotosPerPlayer,
			AllowVideos:     s.cfg.AllowVideos,
			Status:          domain.StatusLobby,
			CreatedAt:       s.now(),
		}
		err = s.store.CreateRoom(ctx, room)
		if err == nil {
			break
		}
		// Another room took the code between generation and insert.
		if errors.Is(err, store.ErrDuplicate) && attempt+1 < createRoomAttempts {
			continue
		}
		return domain.Room{}, domain.Player{}, domain.Transient(op, err)
	}

	host := s.newPlayer(room.ID, userID, name, nil)
	if err := s.store.CreatePlayer(ctx, host); err != nil {
		if delErr := s.store.DeleteRoom(ctx, room.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("op", op).Str("room_id", room.ID.String()).Msg("orphaned room left behind")
		}
		return domain.Room{}, domain.Player{}, domain.Transient(op, err)
	}
	s.audit(ctx, room.ID, "room_created", map[string]any{"code": room.Code, "host_id": userID})
	s.log.Info().Str("op", op).Str("room_id", room.ID.String()).Str("code", room.Code).Msg("room created")
	return room, host, nil
}

// JoinRoom seats userID in the lobby with the given code. Joining a room
// the user is already in returns the existing seat.
func (s *Service) JoinRoom(ctx context.Context, userID uuid.UUID, rawCode, nickname string) (domain.Room, domain.Player, error) {
	const op = "game.join_room"
	if userID == uuid.Nil {
		return domain.Room{}, domain.Player{}, domain.Unauthorized(op, "sign in first")
	}
	code, err := domain.NormalizeCode(rawCode)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	name, err := domain.NormalizeNickname(nickname)
	if err != nil {
		return domain.Room{}, domain.Player{}, err
	}
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return domain.Room{}, domain.Player{}, storeErr(op, err, "room not found")
	}
	if existing, err := s.store.FindPlayer(ctx, room.ID, userID); err == nil {
		return room, existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Room{}, domain.Player{}, domain.Transient(op, err)
	}
	if room.Status != domain.StatusLobby {
		return domain.Room{}, domain.Player{}, domain.Validation(op, "this game has already started")
	}

	players, err := s.store.ListPlayers(ctx, room.ID, store.ByJoined)
	if err != nil {
		return domain.Room{}, domain.Player{}, domain.Transient(op, err)
	}
	if len(players) >= room.MaxPlayers {
		return domain.Room{}, domain.Player{}, domain.Validation(op, "room is full")
	}

	player := s.newPlayer(room.ID, userID, name, players)
	if err := s.store.CreatePlayer(ctx, player); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, findErr := s.store.FindPlayer(ctx, room.ID, userID)
			if findErr == nil {
				return room, existing, nil
			}
		}
		return domain.Room{}, domain.Player{}, storeErr(op, err, "room not found")
	}
	s.audit(ctx, room.ID, "player_joined", map[string]any{"player_id": player.ID, "nickname": player.Nickname})
	s.log.Info().Str("op", op).Str("room_id", room.ID.String()).Str("player_id", player.ID.String()).Msg("player joined")
	return room, player, nil
}

// LeaveRoom removes a non-host player while the room is still a lobby.
func (s *Service) LeaveRoom(ctx context.Context, sess domain.Session) error {
	const op = "game.leave_room"
	room, err := s.room(ctx, op, sess.RoomID)
	if err != nil {
		return err
	}
	if room.IsHost(sess.UserID) {
		return domain.Validation(op, "the host cannot leave the room")
	}
	if room.Status != domain.StatusLobby {
		return domain.Validation(op, "players cannot leave once the game has started")
	}
	if err := s.store.DeletePlayer(ctx, sess.PlayerID); err != nil {
		return storeErr(op, err, "player not found")
	}
	s.audit(ctx, room.ID, "player_left", map[string]any{"player_id": sess.PlayerID})
	return nil
}

// Session resolves the caller's seat in a room.
func (s *Service) Session(ctx context.Context, userID, roomID uuid.UUID) (domain.Session, error) {
	const op = "game.session"
	if userID == uuid.Nil {
		return domain.Session{}, domain.Unauthorized(op, "sign in first")
	}
	player, err := s.store.FindPlayer(ctx, roomID, userID)
	if err != nil {
		return domain.Session{}, storeErr(op, err, "you are not in this room")
	}
	return domain.Session{UserID: userID, RoomID: roomID, PlayerID: player.ID}, nil
}

func (s *Service) newPlayer(roomID, userID uuid.UUID, nickname string, seated []domain.Player) domain.Player {
	return domain.Player{
		ID:          uuid.New(),
		RoomID:      roomID,
		UserID:      userID,
		Nickname:    nickname,
		AvatarColor: s.pickColor(seated),
		JoinedAt:    s.now(),
	}
}

// pickColor draws a random palette colour, preferring ones nobody in the
// room wears yet.
func (s *Service) pickColor(seated []domain.Player) domain.Color {
	used := make(map[domain.Color]bool, len(seated))
	for _, p := range seated {
		used[p.AvatarColor] = true
	}
	free := make([]domain.Color, 0, len(domain.Palette))
	for _, c := range domain.Palette {
		if !used[c] {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		free = domain.Palette
	}
	return free[s.intN(len(free))]
}
