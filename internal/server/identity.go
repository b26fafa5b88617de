package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photo-guess/internal/domain"
)

const (
	userCookie    = "pg_user"
	userCookieAge = 30 * 24 * 60 * 60

	ctxUser    = "user_id"
	ctxSession = "session"
)

// handleSession hands out an anonymous identity, or confirms the one the
// browser already carries.
func (s *Server) handleSession(c *gin.Context) {
	userID, ok := cookieUser(c)
	status := http.StatusOK
	if !ok {
		userID = uuid.New()
		status = http.StatusCreated
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(userCookie, userID.String(), userCookieAge, "/", "", s.cfg.HTTP.SecureCookies, true)
	c.JSON(status, gin.H{"user_id": userID})
}

func cookieUser(c *gin.Context) (uuid.UUID, bool) {
	raw, err := c.Cookie(userCookie)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) requireUser(c *gin.Context) {
	userID, ok := cookieUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in first"})
		return
	}
	c.Set(ctxUser, userID)
	c.Next()
}

// requireSeat resolves the caller's player in the room named by the path.
func (s *Server) requireSeat(c *gin.Context) {
	var uri roomURI
	if !bindURI(c, &uri) {
		return
	}
	roomID, _ := uuid.Parse(uri.RoomID)
	sess, err := s.game.Session(c.Request.Context(), currentUser(c), roomID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Set(ctxSession, sess)
	c.Next()
}

func currentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxUser); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func currentSession(c *gin.Context) domain.Session {
	if v, ok := c.Get(ctxSession); ok {
		if sess, ok := v.(domain.Session); ok {
			return sess
		}
	}
	return domain.Session{}
}
