package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"photo-guess/internal/db"
	"photo-guess/internal/domain"
)

// GormStore persists records in Postgres. When publish is set it also
// feeds the broker from this process; otherwise the broker is expected to
// be fed by a PGListener.
type GormStore struct {
	db      *gorm.DB
	feed    *Broker
	publish bool
	now     func() time.Time
}

func NewGormStore(conn *gorm.DB, feed *Broker, publish bool) *GormStore {
	if feed == nil {
		feed = NewBroker(0)
	}
	return &GormStore{
		db:      conn,
		feed:    feed,
		publish: publish,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *GormStore) Subscribe(ctx context.Context, filter Filter) *Subscription {
	return s.feed.Subscribe(ctx, filter)
}

func (s *GormStore) emit(c Change) {
	if s.publish {
		s.feed.Publish(c)
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *GormStore) CreateRoom(ctx context.Context, room domain.Room) error {
	now := s.now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	record := roomRecord(room)
	if err := s.db.WithContext(ctx).Omit("Players", "Photos", "Rounds", "Events").Create(&record).Error; err != nil {
		return translate(err)
	}
	s.emit(Change{Table: TableRooms, Op: OpInsert, RoomID: room.ID, RowID: room.ID})
	return nil
}

func (s *GormStore) GetRoom(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	var record db.Room
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return domain.Room{}, translate(err)
	}
	return roomFromRecord(record), nil
}

func (s *GormStore) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	var record db.Room
	if err := s.db.WithContext(ctx).First(&record, "code = ?", code).Error; err != nil {
		return domain.Room{}, translate(err)
	}
	return roomFromRecord(record), nil
}

func (s *GormStore) UpdateRoom(ctx context.Context, id uuid.UUID, guard RoomGuard, patch RoomPatch) (domain.Room, error) {
	q := s.db.WithContext(ctx).Model(&db.Room{}).Where("id = ? AND status = ?", id, string(guard.Status))
	if guard.CurrentRound == nil {
		q = q.Where("current_round IS NULL")
	} else {
		q = q.Where("current_round = ?", *guard.CurrentRound)
	}
	updates := map[string]any{"updated_at": s.now()}
	if patch.Status != "" {
		updates["status"] = string(patch.Status)
	}
	if patch.CurrentRound != nil {
		updates["current_round"] = *patch.CurrentRound
	}
	if patch.RoundStartedAt != nil {
		updates["round_started_at"] = *patch.RoundStartedAt
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return domain.Room{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetRoom(ctx, id); err != nil {
			return domain.Room{}, err
		}
		return domain.Room{}, ErrStale
	}
	s.emit(Change{Table: TableRooms, Op: OpUpdate, RoomID: id, RowID: id})
	return s.GetRoom(ctx, id)
}

func (s *GormStore) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&db.Room{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.emit(Change{Table: TableRooms, Op: OpDelete, RoomID: id, RowID: id})
	return nil
}

func (s *GormStore) GenerateRoomCode(ctx context.Context) (string, error) {
	return uniqueCode(func(code string) (bool, error) {
		var n int64
		if err := s.db.WithContext(ctx).Model(&db.Room{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

func (s *GormStore) CreatePlayer(ctx context.Context, player domain.Player) error {
	if player.JoinedAt.IsZero() {
		player.JoinedAt = s.now()
	}
	record := playerRecord(player)
	if err := s.db.WithContext(ctx).Omit("Photos").Create(&record).Error; err != nil {
		return translate(err)
	}
	s.emit(Change{Table: TablePlayers, Op: OpInsert, RoomID: player.RoomID, RowID: player.ID})
	return nil
}

func (s *GormStore) GetPlayer(ctx context.Context, id uuid.UUID) (domain.Player, error) {
	var record db.Player
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return domain.Player{}, translate(err)
	}
	return playerFromRecord(record), nil
}

func (s *GormStore) FindPlayer(ctx context.Context, roomID, userID uuid.UUID) (domain.Player, error) {
	var record db.Player
	err := s.db.WithContext(ctx).First(&record, "room_id = ? AND user_id = ?", roomID, userID).Error
	if err != nil {
		return domain.Player{}, translate(err)
	}
	return playerFromRecord(record), nil
}

func (s *GormStore) ListPlayers(ctx context.Context, roomID uuid.UUID, order PlayerOrder) ([]domain.Player, error) {
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if order == ByScore {
		q = q.Order("score DESC")
	}
	var records []db.Player
	if err := q.Order("joined_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Player, 0, len(records))
	for _, r := range records {
		out = append(out, playerFromRecord(r))
	}
	return out, nil
}

func (s *GormStore) CountPlayers(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&db.Player{}).Where("room_id = ?", roomID).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (s *GormStore) UpdatePlayerReady(ctx context.Context, id uuid.UUID, ready bool) error {
	return s.updatePlayer(ctx, s.db.WithContext(ctx).Model(&db.Player{}).Where("id = ?", id), id,
		map[string]any{"is_ready": ready})
}

func (s *GormStore) UpdatePlayerScore(ctx context.Context, id uuid.UUID, from, to int) error {
	return s.updatePlayer(ctx, s.db.WithContext(ctx).Model(&db.Player{}).Where("id = ? AND score = ?", id, from), id,
		map[string]any{"score": to})
}

func (s *GormStore) updatePlayer(ctx context.Context, q *gorm.DB, id uuid.UUID, updates map[string]any) error {
	res := q.Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	player, err := s.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	s.emit(Change{Table: TablePlayers, Op: OpUpdate, RoomID: player.RoomID, RowID: id})
	return nil
}

func (s *GormStore) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	player, err := s.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&db.Player{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.emit(Change{Table: TablePlayers, Op: OpDelete, RoomID: player.RoomID, RowID: id})
	return nil
}

func (s *GormStore) CreatePhoto(ctx context.Context, photo domain.Photo) error {
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = s.now()
	}
	record := db.Photo{
		ID:          photo.ID,
		RoomID:      photo.RoomID,
		PlayerID:    photo.PlayerID,
		StoragePath: photo.StoragePath,
		IsVideo:     photo.IsVideo,
		UploadedAt:  photo.UploadedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return translate(err)
	}
	s.emit(Change{Table: TablePhotos, Op: OpInsert, RoomID: photo.RoomID, RowID: photo.ID})
	return nil
}

func (s *GormStore) GetPhoto(ctx context.Context, id uuid.UUID) (domain.Photo, error) {
	var record db.Photo
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return domain.Photo{}, translate(err)
	}
	return photoFromRecord(record), nil
}

func (s *GormStore) photoQuery(ctx context.Context, filter PhotoFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&db.Photo{})
	if filter.RoomID != uuid.Nil {
		q = q.Where("room_id = ?", filter.RoomID)
	}
	if filter.PlayerID != uuid.Nil {
		q = q.Where("player_id = ?", filter.PlayerID)
	}
	return q
}

func (s *GormStore) ListPhotos(ctx context.Context, filter PhotoFilter) ([]domain.Photo, error) {
	var records []db.Photo
	if err := s.photoQuery(ctx, filter).Order("uploaded_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Photo, 0, len(records))
	for _, r := range records {
		out = append(out, photoFromRecord(r))
	}
	return out, nil
}

func (s *GormStore) CountPhotos(ctx context.Context, filter PhotoFilter) (int, error) {
	var n int64
	if err := s.photoQuery(ctx, filter).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (s *GormStore) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	photo, err := s.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&db.Photo{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.emit(Change{Table: TablePhotos, Op: OpDelete, RoomID: photo.RoomID, RowID: id})
	return nil
}

func (s *GormStore) CreateRounds(ctx context.Context, rounds []domain.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	now := s.now()
	records := make([]db.Round, 0, len(rounds))
	for _, r := range rounds {
		if r.StartedAt.IsZero() {
			r.StartedAt = now
		}
		records = append(records, db.Round{
			ID:              r.ID,
			RoomID:          r.RoomID,
			Number:          r.Number,
			PhotoID:         r.PhotoID,
			CorrectPlayerID: r.CorrectPlayerID,
			StartedAt:       r.StartedAt,
			EndedAt:         r.EndedAt,
		})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Guesses").Create(&records).Error
	})
	if err != nil {
		return translate(err)
	}
	for _, r := range rounds {
		s.emit(Change{Table: TableRounds, Op: OpInsert, RoomID: r.RoomID, RowID: r.ID})
	}
	return nil
}

func (s *GormStore) CountRounds(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&db.Round{}).Where("room_id = ?", roomID).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (s *GormStore) GetRoundByNumber(ctx context.Context, roomID uuid.UUID, number int) (domain.Round, error) {
	var record db.Round
	err := s.db.WithContext(ctx).First(&record, "room_id = ? AND round_number = ?", roomID, number).Error
	if err != nil {
		return domain.Round{}, translate(err)
	}
	return roundFromRecord(record), nil
}

func (s *GormStore) EndRound(ctx context.Context, id uuid.UUID, at time.Time) error {
	var record db.Round
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return translate(err)
	}
	res := s.db.WithContext(ctx).Model(&db.Round{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", at)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		s.emit(Change{Table: TableRounds, Op: OpUpdate, RoomID: record.RoomID, RowID: id})
	}
	return nil
}

func (s *GormStore) CreateGuess(ctx context.Context, guess domain.Guess) error {
	if guess.GuessedAt.IsZero() {
		guess.GuessedAt = s.now()
	}
	record := db.Guess{
		ID:              guess.ID,
		RoundID:         guess.RoundID,
		PlayerID:        guess.PlayerID,
		GuessedPlayerID: guess.GuessedPlayerID,
		Points:          guess.Points,
		GuessedAt:       guess.GuessedAt,
	}
	return translate(s.db.WithContext(ctx).Create(&record).Error)
}

func (s *GormStore) FindGuess(ctx context.Context, roundID, playerID uuid.UUID) (domain.Guess, error) {
	var record db.Guess
	err := s.db.WithContext(ctx).First(&record, "round_id = ? AND player_id = ?", roundID, playerID).Error
	if err != nil {
		return domain.Guess{}, translate(err)
	}
	return domain.Guess{
		ID:              record.ID,
		RoundID:         record.RoundID,
		PlayerID:        record.PlayerID,
		GuessedPlayerID: record.GuessedPlayerID,
		Points:          record.Points,
		GuessedAt:       record.GuessedAt,
	}, nil
}

func (s *GormStore) SumGuessPoints(ctx context.Context, playerID uuid.UUID) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&db.Guess{}).
		Where("player_id = ?", playerID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, translate(err)
	}
	return int(total), nil
}

func (s *GormStore) AppendEvent(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	record := db.Event{
		RoomID:    event.RoomID,
		Type:      event.Type,
		Payload:   datatypes.JSON(payload),
		CreatedAt: event.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("append event %s: %w", event.Type, translate(err))
	}
	return nil
}

func (s *GormStore) ListEvents(ctx context.Context, roomID uuid.UUID) ([]Event, error) {
	var records []db.Event
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]Event, 0, len(records))
	for _, r := range records {
		out = append(out, Event{
			ID:        r.ID,
			RoomID:    r.RoomID,
			Type:      r.Type,
			Payload:   []byte(r.Payload),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func roomRecord(r domain.Room) db.Room {
	return db.Room{
		ID:              r.ID,
		Code:            r.Code,
		HostID:          r.HostID,
		MaxPlayers:      r.MaxPlayers,
		PhotosPerPlayer: r.PhotosPerPlayer,
		AllowVideos:     r.AllowVideos,
		Status:          string(r.Status),
		CurrentRound:    r.CurrentRound,
		RoundStartedAt:  r.RoundStartedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func roomFromRecord(r db.Room) domain.Room {
	return domain.Room{
		ID:              r.ID,
		Code:            r.Code,
		HostID:          r.HostID,
		MaxPlayers:      r.MaxPlayers,
		PhotosPerPlayer: r.PhotosPerPlayer,
		AllowVideos:     r.AllowVideos,
		Status:          domain.RoomStatus(r.Status),
		CurrentRound:    r.CurrentRound,
		RoundStartedAt:  r.RoundStartedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func playerRecord(p domain.Player) db.Player {
	return db.Player{
		ID:          p.ID,
		RoomID:      p.RoomID,
		UserID:      p.UserID,
		Nickname:    p.Nickname,
		AvatarColor: string(p.AvatarColor),
		Score:       p.Score,
		IsReady:     p.IsReady,
		JoinedAt:    p.JoinedAt,
	}
}

func playerFromRecord(p db.Player) domain.Player {
	return domain.Player{
		ID:          p.ID,
		RoomID:      p.RoomID,
		UserID:      p.UserID,
		Nickname:    p.Nickname,
		AvatarColor: domain.Color(p.AvatarColor),
		Score:       p.Score,
		IsReady:     p.IsReady,
		JoinedAt:    p.JoinedAt,
	}
}

func photoFromRecord(p db.Photo) domain.Photo {
	return domain.Photo{
		ID:          p.ID,
		RoomID:      p.RoomID,
		PlayerID:    p.PlayerID,
		StoragePath: p.StoragePath,
		IsVideo:     p.IsVideo,
		UploadedAt:  p.UploadedAt,
	}
}

func roundFromRecord(r db.Round) domain.Round {
	return domain.Round{
		ID:              r.ID,
		RoomID:          r.RoomID,
		Number:          r.Number,
		PhotoID:         r.PhotoID,
		CorrectPlayerID: r.CorrectPlayerID,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
	}
}
