package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"photo-guess/internal/domain"
	"photo-guess/internal/game"
)

const qrSize = 320

type createRoomRequest struct {
	Nickname string `json:"nickname" binding:"required,nickname"`
}

type joinRoomRequest struct {
	Code     string `json:"code" binding:"required,roomcode"`
	Nickname string `json:"nickname" binding:"required,nickname"`
}

type advanceRequest struct {
	// Round is the round the host was looking at.
	Round int `json:"round" binding:"required,min=1"`
}

type roomResponse struct {
	Room        domain.Room     `json:"room"`
	Players     []domain.Player `json:"players"`
	Session     domain.Session  `json:"session"`
	TotalRounds int             `json:"total_rounds"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req, bindMessages{"Nickname": nicknameMessages}, "") {
		return
	}
	room, player, err := s.game.CreateRoom(c.Request.Context(), currentUser(c), req.Nickname)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room, "player": player})
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	var req joinRoomRequest
	messages := bindMessages{
		"Nickname": nicknameMessages,
		"Code": {
			"required": "room code is required",
			"roomcode": "room codes are 6 letters or digits",
		},
	}
	if !bindJSON(c, &req, messages, "") {
		return
	}
	room, player, err := s.game.JoinRoom(c.Request.Context(), currentUser(c), req.Code, req.Nickname)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "player": player})
}

func (s *Server) handleGetRoom(c *gin.Context) {
	sess := currentSession(c)
	standings, err := s.game.Results(c.Request.Context(), sess.RoomID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	total, err := s.game.TotalRounds(c.Request.Context(), sess.RoomID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{
		Room:        standings.Room,
		Players:     standings.Players,
		Session:     sess,
		TotalRounds: total,
	})
}

func (s *Server) handleLeaveRoom(c *gin.Context) {
	if err := s.game.LeaveRoom(c.Request.Context(), currentSession(c)); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleQRCode renders the join link for the room as a PNG.
func (s *Server) handleQRCode(c *gin.Context) {
	standings, err := s.game.Results(c.Request.Context(), currentSession(c).RoomID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	link := scheme + "://" + c.Request.Host + "/join/" + standings.Room.Code
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		s.log.Error().Err(err).Msg("qr generation failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "qr generation failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleStartUpload(c *gin.Context) {
	room, err := s.game.StartUpload(c.Request.Context(), currentSession(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *Server) handleStartPlaying(c *gin.Context) {
	room, err := s.game.StartPlaying(c.Request.Context(), currentSession(c))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (s *Server) handleAdvance(c *gin.Context) {
	var req advanceRequest
	if !bindJSON(c, &req, nil, "round is required") {
		return
	}
	room, err := s.game.Advance(c.Request.Context(), currentSession(c), req.Round)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

type resultsResponse struct {
	game.Standings
	Winner *domain.Player `json:"winner,omitempty"`
}

func (s *Server) handleResults(c *gin.Context) {
	standings, err := s.game.Results(c.Request.Context(), currentSession(c).RoomID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	resp := resultsResponse{Standings: standings}
	if standings.Room.Status == domain.StatusFinished {
		if w, ok := standings.Winner(); ok {
			resp.Winner = &w
		}
	}
	c.JSON(http.StatusOK, resp)
}
