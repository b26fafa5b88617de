package server

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"photo-guess/internal/config"
	"photo-guess/internal/game"
)

type Server struct {
	game     *game.Service
	cfg      config.Config
	log      zerolog.Logger
	limiter  *rateLimiter
	upgrader websocket.Upgrader

	// ctx outlives requests; websocket sessions hang off it.
	ctx    context.Context
	cancel context.CancelFunc
	peers  sync.WaitGroup
}

func New(svc *game.Service, cfg config.Config, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		game:    svc,
		cfg:     cfg,
		log:     log.With().Str("component", "http").Logger(),
		limiter: newRateLimiter(cfg.HTTP.JoinRate, cfg.HTTP.JoinBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	registerValidators()
	router := gin.New()
	router.MaxMultipartMemory = s.cfg.Media.MaxUploadBytes
	router.Use(gin.Recovery(), requestLogger(s.log), cors.New(s.corsConfig()))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if base := s.cfg.Media.BaseURL; strings.HasPrefix(base, "/") {
		router.Static(base, s.cfg.Media.Dir)
	}

	api := router.Group("/api")
	api.POST("/session", s.handleSession)

	rooms := api.Group("/rooms", s.requireUser)
	rooms.POST("", s.limiter.middleware(), s.handleCreateRoom)
	rooms.POST("/join", s.limiter.middleware(), s.handleJoinRoom)

	room := rooms.Group("/:roomID", s.requireSeat)
	room.GET("", s.handleGetRoom)
	room.DELETE("/players/me", s.handleLeaveRoom)
	room.GET("/qr.png", s.handleQRCode)
	room.POST("/upload-phase", s.handleStartUpload)
	room.GET("/photos", s.handleListPhotos)
	room.POST("/photos", s.handleUploadPhoto)
	room.DELETE("/photos/:photoID", s.handleDeletePhoto)
	room.POST("/ready", s.handleReady)
	room.POST("/start", s.handleStartPlaying)
	room.POST("/guesses", s.handleGuess)
	room.POST("/advance", s.handleAdvance)
	room.POST("/score/reconcile", s.handleReconcile)
	room.GET("/results", s.handleResults)

	router.GET("/ws/rooms/:roomID", s.requireUser, s.requireSeat, s.handleWebsocket)
	return router
}

// Close ends websocket sessions and background work.
func (s *Server) Close() {
	s.cancel()
	s.limiter.Close()
	s.peers.Wait()
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Content-Type", "Origin", "Accept"}
	origins := s.cfg.HTTP.AllowedOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	origins := s.cfg.HTTP.AllowedOrigins
	if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
		return true
	}
	return slices.Contains(origins, origin)
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Info()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", clientIP(c.Request)).
			Msg("request")
	}
}
