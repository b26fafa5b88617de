package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photo-guess/internal/domain"
)

type guessRequest struct {
	GuessedPlayerID string `json:"guessed_player_id" binding:"required,uuid"`
	// Remaining is the client's countdown when the guess was made. Out of
	// range values are clamped when scoring.
	Remaining int `json:"remaining"`
}

type photoResponse struct {
	domain.Photo
	URL string `json:"url"`
}

func (s *Server) photoResponse(p domain.Photo) photoResponse {
	return photoResponse{Photo: p, URL: s.game.MediaURL(p.StoragePath)}
}

func (s *Server) handleListPhotos(c *gin.Context) {
	photos, err := s.game.Photos(c.Request.Context(), currentSession(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	out := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		out = append(out, s.photoResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"photos": out})
}

func (s *Server) handleUploadPhoto(c *gin.Context) {
	// Leave room for the multipart envelope around the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Media.MaxUploadBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "the file is too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "attach a photo as the file field"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "upload could not be read"})
		return
	}
	defer file.Close()

	photo, err := s.game.AddPhoto(c.Request.Context(), currentSession(c), file)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"photo": s.photoResponse(photo)})
}

func (s *Server) handleDeletePhoto(c *gin.Context) {
	var uri photoURI
	if !bindURI(c, &uri) {
		return
	}
	photoID, _ := uuid.Parse(uri.PhotoID)
	if err := s.game.DeletePhoto(c.Request.Context(), currentSession(c), photoID); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.game.MarkReady(c.Request.Context(), currentSession(c)); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGuess(c *gin.Context) {
	var req guessRequest
	messages := bindMessages{
		"GuessedPlayerID": {
			"required": "pick a player",
			"uuid":     "pick a player",
		},
	}
	if !bindJSON(c, &req, messages, "") {
		return
	}
	guessed, _ := uuid.Parse(req.GuessedPlayerID)
	result, err := s.game.SubmitGuess(c.Request.Context(), currentSession(c), guessed, req.Remaining)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// handleReconcile repairs a score whose update failed after the guess
// was stored.
func (s *Server) handleReconcile(c *gin.Context) {
	score, err := s.game.ReconcileScore(c.Request.Context(), currentSession(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score})
}
