package store

// Conversation is a two-party messaging thread. Participants are an
// unordered pair; the a/b split is storage layout, not semantics.
type Conversation struct {
	ID              string
	ParticipantA    string
	ParticipantB    string
	CreatedAt       int64
	LastMessageText string
	LastMessageAt   int64
}

// Has reports whether userID is a participant.
func (c *Conversation) Has(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is one message in a conversation. EditedAt and DeliveredAt are
// zero when unset. Read is monotonic: it may flip false→true, never back.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	ReplyToID      string
	ReplyToBody    string
	ReplyToSender  string
	ImageRef       string
	CreatedAt      int64
	EditedAt       int64
	Read           bool
	DeliveredAt    int64
}

// TypingSignal is one user's typing state in one conversation. Staleness is
// a read-time computation against UpdatedAt; the record itself may outlive
// the signal.
type TypingSignal struct {
	ConversationID string
	UserID         string
	IsTyping       bool
	UpdatedAt      int64
}

// PresenceRecord is a user's online state plus denormalized display fields.
type PresenceRecord struct {
	UserID      string
	Online      bool
	LastSeen    int64
	DisplayName string
	AvatarURL   string
}

// ConversationSummary is the derived per-viewer list-view row. It is
// computed by query, never stored.
type ConversationSummary struct {
	ConversationID  string
	OtherUserID     string
	LastMessageText string
	LastMessageAt   int64
	UnreadCount     int
	Muted           bool
	Favorite        bool
}
