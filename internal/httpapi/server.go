// Package httpapi exposes the daemon's local HTTP and websocket surface.
// Clients drive every operation through it; live views are served over
// websocket as full snapshots.
package httpapi

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pigeonmsg/pigeon/internal/convo"
	"github.com/pigeonmsg/pigeon/internal/message"
	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/presence"
	"github.com/pigeonmsg/pigeon/internal/session"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/summary"
	"github.com/pigeonmsg/pigeon/internal/typing"
)

// Server wires the domain services behind the HTTP surface.
type Server struct {
	logger    *zap.Logger
	session   *session.Session
	db        *store.DB
	convos    *convo.Service
	messages  *message.Service
	typing    *typing.Manager
	presence  *presence.Tracker
	summaries *summary.Aggregator

	mu        sync.Mutex
	composers map[string]*typing.Debouncer
}

// New builds a Server over the given services.
func New(logger *zap.Logger, sess *session.Session, db *store.DB, convos *convo.Service, messages *message.Service, typingMgr *typing.Manager, tracker *presence.Tracker, summaries *summary.Aggregator) *Server {
	return &Server{
		logger:    logger,
		session:   sess,
		db:        db,
		convos:    convos,
		messages:  messages,
		typing:    typingMgr,
		presence:  tracker,
		summaries: summaries,
		composers: make(map[string]*typing.Debouncer),
	}
}

// composer returns the debouncer driving the viewer's typing signal in one
// conversation, creating it on first use.
func (s *Server) composer(convoID, userID string) *typing.Debouncer {
	key := convoID + "\x00" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.composers[key]
	if !ok {
		d = typing.NewDebouncer(s.typing, convoID, userID)
		s.composers[key] = d
	}
	return d
}

func (s *Server) lookupComposer(convoID, userID string) *typing.Debouncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composers[convoID+"\x00"+userID]
}

// CloseComposers publishes the off transition for every open composer. Called
// on logout and on daemon shutdown as the teardown guarantee.
func (s *Server) CloseComposers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, d := range s.composers {
		d.Close()
		delete(s.composers, key)
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPMetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/session/login", s.login)
	r.GET("/session", s.sessionStatus)

	auth := r.Group("/", s.requireSession())
	{
		auth.POST("/session/logout", s.logout)

		auth.POST("/conversations", s.startConversation)
		auth.GET("/conversations", s.listConversations)
		auth.DELETE("/conversations/:id", s.deleteConversation)
		auth.POST("/conversations/:id/mute", s.setMuted)
		auth.POST("/conversations/:id/favorite", s.setFavorite)
		auth.POST("/conversations/:id/clear", s.clearConversation)

		auth.GET("/conversations/:id/messages", s.listMessages)
		auth.POST("/conversations/:id/messages", s.postMessage)
		auth.PUT("/conversations/:id/messages/:message_id", s.editMessage)
		auth.DELETE("/messages/:message_id", s.deleteMessage)
		auth.POST("/messages/:message_id/read", s.markMessageRead)

		auth.POST("/conversations/:id/typing", s.setTyping)
		auth.POST("/conversations/:id/composer", s.setComposer)
		auth.GET("/presence", s.listPresence)
		auth.PUT("/presence/profile", s.setProfile)

		auth.GET("/ws/conversations/:id/messages", s.watchMessages)
		auth.GET("/ws/conversations/:id/typing", s.watchTyping)
		auth.GET("/ws/summaries", s.watchSummaries)
		auth.GET("/ws/presence", s.watchPresence)
	}

	return r
}

// requireSession rejects requests when no identity is active and stashes the
// viewer id in the gin context for handlers.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.session.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func viewerID(c *gin.Context) string {
	return c.GetString("userID")
}

// writeError maps domain errors onto HTTP status codes. Anything not in the
// taxonomy is treated as the store being unavailable.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, convo.ErrInvalidParticipants),
		errors.Is(err, message.ErrEmptyMessage),
		errors.Is(err, message.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, session.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	case errors.Is(err, store.ErrUnavailable):
		s.logger.Error("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		s.logger.Error("store error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	}
}

// DisplayName resolves a user's display name from the presence profile,
// falling back to the raw id. Satisfies summary.ProfileResolver.
func (s *Server) DisplayName(userID string) string {
	p, err := s.db.GetPresence(userID)
	if err != nil || p.DisplayName == "" {
		return userID
	}
	return p.DisplayName
}
