package server

import (
	"fmt"
	"gigchat/auth"
	"gigchat/contract"
	"gigchat/errors"
	"gigchat/repositories"
	"gigchat/services"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const DefaultConnectionBufferSize = 64

// Server exposes the chat and account operations over HTTP and delivers
// conversation events to authenticated websocket sessions.
type Server struct {
	chatService          services.IChatService
	resetService         services.IPasswordResetService
	users                repositories.IUserRepository
	gate                 *auth.Gate
	registry             contract.IRegistry
	log                  *slog.Logger
	connectionBufferSize int
	upgrader             websocket.Upgrader
	startedAt            time.Time
}

func NewServer(
	log *slog.Logger,
	chatService services.IChatService,
	resetService services.IPasswordResetService,
	users repositories.IUserRepository,
	gate *auth.Gate,
	registry contract.IRegistry,
	connectionBufferSize int,
) *Server {
	if connectionBufferSize <= 0 {
		connectionBufferSize = DefaultConnectionBufferSize
	}
	return &Server{
		chatService:          chatService,
		resetService:         resetService,
		users:                users,
		gate:                 gate,
		registry:             registry,
		log:                  log,
		connectionBufferSize: connectionBufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
}

// Router wires every route on a new gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/health", s.health)
	router.GET("/ws", gin.WrapH(s.gate.Middleware(http.HandlerFunc(s.serveWebsocket))))

	chat := router.Group("/api/chat/conversations")
	chat.POST("", s.createConversation)
	chat.GET("/:id", s.getConversation)
	chat.DELETE("/:id", s.deleteConversation)
	chat.GET("/:id/participants", s.listParticipants)
	chat.POST("/:id/participants", s.addParticipant)
	chat.PATCH("/:id/participants/:userId", s.updateParticipantRole)
	chat.DELETE("/:id/participants/:userId", s.removeParticipant)
	chat.POST("/:id/messages", s.sendMessage)
	chat.GET("/:id/messages", s.getMessages)
	chat.POST("/:id/read", s.markRead)

	account := router.Group("/api/auth")
	account.POST("/forgot-password", s.forgotPassword)
	account.POST("/reset-password", s.resetPassword)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("HTTP request",
		"method", c.Request.Method,
		"route", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

// fail writes err with the status it maps to. Authentication failures get
// an empty body.
func (s *Server) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	switch status {
	case http.StatusUnauthorized:
		c.AbortWithStatus(status)
		return
	case http.StatusInternalServerError:
		s.log.Error("Request failed", "method", c.Request.Method, "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errors.PublicMessage(err)})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errors.ErrInvalidInput, name)
	}
	return id, nil
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return nil
}
