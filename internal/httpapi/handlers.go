package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pigeonmsg/pigeon/internal/message"
	"github.com/pigeonmsg/pigeon/internal/presence"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/summary"
)

type messageResponse struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	Body          string `json:"body"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
	ReplyToBody   string `json:"reply_to_body,omitempty"`
	ReplyToSender string `json:"reply_to_sender,omitempty"`
	ImageRef      string `json:"image_ref,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	EditedAt      int64  `json:"edited_at,omitempty"`
	Read          bool   `json:"read"`
	DeliveredAt   int64  `json:"delivered_at,omitempty"`
}

func toMessageResponse(m store.Message) messageResponse {
	return messageResponse{
		ID:            m.ID,
		SenderID:      m.SenderID,
		Body:          m.Body,
		ReplyToID:     m.ReplyToID,
		ReplyToBody:   m.ReplyToBody,
		ReplyToSender: m.ReplyToSender,
		ImageRef:      m.ImageRef,
		CreatedAt:     m.CreatedAt,
		EditedAt:      m.EditedAt,
		Read:          m.Read,
		DeliveredAt:   m.DeliveredAt,
	}
}

func toMessageResponses(msgs []store.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

type summaryResponse struct {
	ConversationID  string `json:"conversation_id"`
	OtherUserID     string `json:"other_user_id"`
	OtherName       string `json:"other_name"`
	LastMessageText string `json:"last_message_text"`
	LastMessageAt   int64  `json:"last_message_at"`
	UnreadCount     int    `json:"unread_count"`
	Muted           bool   `json:"muted"`
	Favorite        bool   `json:"favorite"`
}

func (s *Server) toSummaryResponses(sums []store.ConversationSummary) []summaryResponse {
	out := make([]summaryResponse, 0, len(sums))
	for _, sum := range sums {
		out = append(out, summaryResponse{
			ConversationID:  sum.ConversationID,
			OtherUserID:     sum.OtherUserID,
			OtherName:       s.DisplayName(sum.OtherUserID),
			LastMessageText: sum.LastMessageText,
			LastMessageAt:   sum.LastMessageAt,
			UnreadCount:     sum.UnreadCount,
			Muted:           sum.Muted,
			Favorite:        sum.Favorite,
		})
	}
	return out
}

type presenceResponse struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	LastSeen    int64  `json:"last_seen"`
	LastSeenFmt string `json:"last_seen_text"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func toPresenceResponses(recs []store.PresenceRecord) []presenceResponse {
	now := time.Now().UnixMilli()
	out := make([]presenceResponse, 0, len(recs))
	for _, p := range recs {
		out = append(out, presenceResponse{
			UserID:      p.UserID,
			Online:      p.Online,
			LastSeen:    p.LastSeen,
			LastSeenFmt: presence.FormatLastSeen(p.LastSeen, now),
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
		})
	}
	return out
}

// login activates an identity for the daemon and marks it online.
func (s *Server) login(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.Login(req.UserID)
	if err := s.presence.SetOnline(req.UserID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID})
}

// logout stamps last-seen, clears any open composers, and drops the identity.
func (s *Server) logout(c *gin.Context) {
	userID := viewerID(c)
	s.CloseComposers()
	if err := s.presence.SetOffline(userID); err != nil {
		s.writeError(c, err)
		return
	}
	s.session.Logout()
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

func (s *Server) sessionStatus(c *gin.Context) {
	if !s.session.Active() {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	userID, _ := s.session.UserID()
	c.JSON(http.StatusOK, gin.H{"active": true, "user_id": userID})
}

// startConversation finds or creates the thread between the viewer and peer.
func (s *Server) startConversation(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.convos.FindOrCreateDirect(viewerID(c), req.PeerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

// listConversations returns the viewer's summary list, optionally filtered by
// the other participant's display name.
func (s *Server) listConversations(c *gin.Context) {
	sums, err := s.summaries.List(viewerID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if term := c.Query("filter"); term != "" {
		sums = summary.FilterByName(sums, term, s)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": s.toSummaryResponses(sums)})
}

func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.convos.Delete(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) setMuted(c *gin.Context) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.convos.SetMuted(c.Param("id"), viewerID(c), req.Muted); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": req.Muted})
}

func (s *Server) setFavorite(c *gin.Context) {
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.convos.SetFavorite(c.Param("id"), viewerID(c), req.Favorite); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorite": req.Favorite})
}

func (s *Server) clearConversation(c *gin.Context) {
	if err := s.messages.ClearAll(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) listMessages(c *gin.Context) {
	convoID := c.Param("id")
	if _, err := s.convos.Get(convoID); err != nil {
		s.writeError(c, err)
		return
	}
	msgs, err := s.db.ListMessages(convoID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessageResponses(msgs)})
}

// postMessage appends a message as the viewer. A reply_to_id is resolved to a
// snapshot of the referenced message at send time.
func (s *Server) postMessage(c *gin.Context) {
	var req struct {
		Body      string `json:"body"`
		ReplyToID string `json:"reply_to_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	convoID := c.Param("id")
	// A deleted conversation is the caller's NotFound, not a store failure.
	if _, err := s.convos.Get(convoID); err != nil {
		s.writeError(c, err)
		return
	}

	var reply *message.ReplyRef
	if req.ReplyToID != "" {
		orig, err := s.db.GetMessage(req.ReplyToID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		reply = &message.ReplyRef{MessageID: orig.ID, Body: orig.Body, SenderID: orig.SenderID}
	}

	id, err := s.messages.Append(convoID, viewerID(c), req.Body, reply)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// Sending ends the composer's typing signal immediately.
	if d := s.lookupComposer(convoID, viewerID(c)); d != nil {
		d.MessageSent()
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id})
}

func (s *Server) editMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.messages.Edit(c.Param("id"), c.Param("message_id"), req.Body); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edited": true})
}

func (s *Server) deleteMessage(c *gin.Context) {
	if err := s.messages.Delete(c.Param("message_id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) markMessageRead(c *gin.Context) {
	if err := s.messages.MarkRead(c.Param("message_id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// setComposer reports the viewer's current composer text for a conversation.
// The daemon debounces the typing signal from it: non-empty text publishes
// isTyping=true and arms the idle auto-clear; empty text clears immediately.
func (s *Server) setComposer(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	convoID := c.Param("id")
	if _, err := s.convos.Get(convoID); err != nil {
		s.writeError(c, err)
		return
	}
	s.composer(convoID, viewerID(c)).InputChanged(req.Text)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// setTyping writes the viewer's typing state directly, bypassing the
// debouncer. Intended for clients that manage their own composer lifecycle;
// the composer endpoint is the debounced path.
func (s *Server) setTyping(c *gin.Context) {
	var req struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.typing.SetTyping(c.Param("id"), viewerID(c), req.IsTyping); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_typing": req.IsTyping})
}

func (s *Server) listPresence(c *gin.Context) {
	recs, err := s.db.ListPresence()
	if err != nil {
		s.writeError(c, err)
		return
	}
	viewer := viewerID(c)
	filtered := recs[:0]
	for _, p := range recs {
		if p.UserID != viewer {
			filtered = append(filtered, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"presence": toPresenceResponses(filtered)})
}

func (s *Server) setProfile(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.presence.SetProfile(viewerID(c), req.DisplayName, req.AvatarURL); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
