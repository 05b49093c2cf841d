package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pigeonmsg/pigeon/internal/observability"
	"github.com/pigeonmsg/pigeon/internal/receipt"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
)

var upgrader = websocket.Upgrader{
	// The daemon binds to loopback only; origin checks add nothing there.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope frames every snapshot pushed over a watch socket.
type envelope struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// serveSnapshots pumps a subscription's snapshots over a websocket until
// either side goes away. The subscription is always canceled on return.
func serveSnapshots[T any](s *Server, c *gin.Context, kind string, sub *stream.Subscription[T], project func(T) any) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Cancel()
		return
	}
	observability.IncWSActive(kind)
	start := time.Now()
	defer func() {
		sub.Cancel()
		_ = conn.Close()
		observability.DecWSActive(kind)
		s.logger.Debug("watch closed",
			zap.String("kind", kind),
			zap.Duration("duration", time.Since(start)))
	}()

	// Reader loop exists only to notice the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Cancel()
				return
			}
		}
	}()

	for snap := range sub.Snapshots() {
		env := envelope{ID: uuid.NewString(), Kind: kind}
		if snap.Err != nil {
			env.Error = "store unavailable"
		} else {
			env.Data = project(snap.Data)
		}
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// watchMessages streams the conversation's full message list and, while the
// socket is open, reconciles read receipts for the viewer: every visible
// unread message from the peer gets marked read exactly once.
func (s *Server) watchMessages(c *gin.Context) {
	convoID := c.Param("id")
	if _, err := s.convos.Get(convoID); err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	rec := receipt.New(s.messages, viewerID(c), s.logger)
	go rec.Run(ctx, s.messages.Subscribe(convoID))

	serveSnapshots(s, c, "messages", s.messages.Subscribe(convoID), func(msgs []store.Message) any {
		return toMessageResponses(msgs)
	})
}

// watchSummaries streams the viewer's conversation list.
func (s *Server) watchSummaries(c *gin.Context) {
	sub := s.summaries.ObserveAll(viewerID(c))
	serveSnapshots(s, c, "summaries", sub, func(sums []store.ConversationSummary) any {
		return s.toSummaryResponses(sums)
	})
}

// watchTyping streams the ids of peers currently typing in the conversation.
func (s *Server) watchTyping(c *gin.Context) {
	convoID := c.Param("id")
	if _, err := s.convos.Get(convoID); err != nil {
		s.writeError(c, err)
		return
	}
	sub := s.typing.Observe(convoID, viewerID(c))
	serveSnapshots(s, c, "typing", sub, func(users []string) any {
		if users == nil {
			users = []string{}
		}
		return users
	})
}

// watchPresence streams everyone else's presence, online first.
func (s *Server) watchPresence(c *gin.Context) {
	sub := s.presence.ObserveAll(viewerID(c))
	serveSnapshots(s, c, "presence", sub, func(recs []store.PresenceRecord) any {
		return toPresenceResponses(recs)
	})
}
