package game

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"photo-guess/internal/domain"
	"photo-guess/internal/media"
	"photo-guess/internal/store"
)

// AddPhoto stores an upload for the session's player while the room is
// collecting photos.
func (s *Service) AddPhoto(ctx context.Context, sess domain.Session, r io.Reader) (domain.Photo, error) {
	const op = "game.add_photo"
	room, err := s.uploadingRoom(ctx, op, sess)
	if err != nil {
		return domain.Photo{}, err
	}
	count, err := s.store.CountPhotos(ctx, store.PhotoFilter{RoomID: room.ID, PlayerID: sess.PlayerID})
	if err != nil {
		return domain.Photo{}, domain.Transient(op, err)
	}
	if count >= room.PhotosPerPlayer {
		return domain.Photo{}, domain.Validation(op, "you already uploaded %d photos", room.PhotosPerPlayer)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxUpload+1))
	if err != nil {
		return domain.Photo{}, domain.Transient(op, fmt.Errorf("read upload: %w", err))
	}
	if len(data) == 0 {
		return domain.Photo{}, domain.Validation(op, "the file is empty")
	}
	if int64(len(data)) > s.maxUpload {
		return domain.Photo{}, domain.Validation(op, "the file is larger than %d MB", s.maxUpload>>20)
	}
	kind, err := media.Detect(data)
	if err != nil {
		return domain.Photo{}, domain.Validation(op, "only images and videos can be uploaded")
	}
	if kind.IsVideo && !room.AllowVideos {
		return domain.Photo{}, domain.Validation(op, "videos are not allowed in this room")
	}

	photo := domain.Photo{
		ID:          uuid.New(),
		RoomID:      room.ID,
		PlayerID:    sess.PlayerID,
		StoragePath: fmt.Sprintf("%s/%s/%s%s", room.ID, sess.PlayerID, uuid.NewString(), kind.Extension),
		IsVideo:     kind.IsVideo,
		UploadedAt:  s.now(),
	}
	if err := s.media.Save(ctx, photo.StoragePath, bytes.NewReader(data)); err != nil {
		return domain.Photo{}, domain.Transient(op, err)
	}
	if err := s.store.CreatePhoto(ctx, photo); err != nil {
		if rmErr := s.media.Remove(ctx, photo.StoragePath); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("op", op).Str("path", photo.StoragePath).Msg("orphaned media file")
		}
		return domain.Photo{}, storeErr(op, err, "player not found")
	}
	s.log.Debug().Str("op", op).Str("room_id", room.ID.String()).Str("photo_id", photo.ID.String()).
		Bool("video", photo.IsVideo).Msg("photo uploaded")
	return photo, nil
}

// DeletePhoto removes one of the player's own photos. Dropping below the
// quota clears the ready flag.
func (s *Service) DeletePhoto(ctx context.Context, sess domain.Session, photoID uuid.UUID) error {
	const op = "game.delete_photo"
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return storeErr(op, err, "photo not found")
	}
	if photo.PlayerID != sess.PlayerID || photo.RoomID != sess.RoomID {
		return domain.Unauthorized(op, "you can only delete your own photos")
	}
	if _, err := s.uploadingRoom(ctx, op, sess); err != nil {
		return err
	}
	if err := s.store.DeletePhoto(ctx, photoID); err != nil {
		return storeErr(op, err, "photo not found")
	}
	if err := s.store.UpdatePlayerReady(ctx, sess.PlayerID, false); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn().Err(err).Str("op", op).Msg("ready flag not cleared")
	}
	if err := s.media.Remove(ctx, photo.StoragePath); err != nil {
		s.log.Warn().Err(err).Str("op", op).Str("path", photo.StoragePath).Msg("media file not removed")
	}
	return nil
}

// MarkReady flags the player as done uploading. It needs the full quota.
func (s *Service) MarkReady(ctx context.Context, sess domain.Session) error {
	const op = "game.mark_ready"
	room, err := s.uploadingRoom(ctx, op, sess)
	if err != nil {
		return err
	}
	count, err := s.store.CountPhotos(ctx, store.PhotoFilter{RoomID: room.ID, PlayerID: sess.PlayerID})
	if err != nil {
		return domain.Transient(op, err)
	}
	if count < room.PhotosPerPlayer {
		return domain.Validation(op, "upload %d more photos first", room.PhotosPerPlayer-count)
	}
	if err := s.store.UpdatePlayerReady(ctx, sess.PlayerID, true); err != nil {
		return storeErr(op, err, "player not found")
	}
	return nil
}

// Photos lists the session player's uploads.
func (s *Service) Photos(ctx context.Context, sess domain.Session) ([]domain.Photo, error) {
	const op = "game.photos"
	photos, err := s.store.ListPhotos(ctx, store.PhotoFilter{RoomID: sess.RoomID, PlayerID: sess.PlayerID})
	if err != nil {
		return nil, domain.Transient(op, err)
	}
	return photos, nil
}

func (s *Service) uploadingRoom(ctx context.Context, op string, sess domain.Session) (domain.Room, error) {
	room, err := s.room(ctx, op, sess.RoomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Status != domain.StatusUploading {
		return domain.Room{}, domain.Validation(op, "photos can only be changed during the upload phase")
	}
	return room, nil
}
