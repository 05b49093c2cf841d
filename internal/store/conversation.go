package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// normalizePair orders a participant pair so the unordered pair maps to one
// storage layout.
func normalizePair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

// CreateConversation inserts the direct conversation for the pair, or leaves
// the existing one untouched, and returns its id. The pair is stored sorted
// under a unique index, so two concurrent creates for the same pair converge
// on a single row. Creation time is stamped here.
func (db *DB) CreateConversation(userA, userB string) (string, error) {
	a, b := normalizePair(userA, userB)
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_a, participant_b) DO NOTHING`,
		id, a, b, now)
	if err != nil {
		return "", failure(fmt.Errorf("create conversation: %w", err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", failure(err)
	} else if n == 1 {
		return id, nil
	}

	// Lost the insert to a concurrent creator; the winning row is ours too.
	err = db.QueryRow(`
		SELECT id FROM conversations WHERE participant_a = ? AND participant_b = ?`,
		a, b).Scan(&id)
	if err != nil {
		return "", failure(fmt.Errorf("create conversation: %w", err))
	}
	return id, nil
}

// ListConversationsWith returns every conversation that includes userID.
func (db *DB) ListConversationsWith(userID string) ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT id, participant_a, participant_b, created_at, last_message_text, last_message_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY last_message_at DESC, created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, failure(err)
	}
	defer func() { _ = rows.Close() }()

	var convos []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.CreatedAt, &c.LastMessageText, &c.LastMessageAt); err != nil {
			return nil, err
		}
		convos = append(convos, c)
	}
	return convos, failure(rows.Err())
}

// GetConversation returns a single conversation, or ErrNotFound.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, participant_a, participant_b, created_at, last_message_text, last_message_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.CreatedAt, &c.LastMessageText, &c.LastMessageAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, failure(err)
	}
	return &c, nil
}

// UpdatePreview sets the conversation's last-message preview fields.
func (db *DB) UpdatePreview(id, text string, at int64) error {
	res, err := db.Exec(`
		UPDATE conversations SET last_message_text = ?, last_message_at = ?
		WHERE id = ?`, text, at, id)
	if err != nil {
		return failure(err)
	}
	return requireRow(res)
}

// ClearPreview resets the preview fields to empty, which also removes the
// conversation from summary views.
func (db *DB) ClearPreview(id string) error {
	res, err := db.Exec(`
		UPDATE conversations SET last_message_text = '', last_message_at = 0
		WHERE id = ?`, id)
	if err != nil {
		return failure(err)
	}
	return requireRow(res)
}

// SetMuted records whether userID has muted the conversation.
func (db *DB) SetMuted(convoID, userID string, muted bool) error {
	return db.upsertSetting(convoID, userID, "muted", muted)
}

// SetFavorite records whether userID has favorited the conversation.
func (db *DB) SetFavorite(convoID, userID string, favorite bool) error {
	return db.upsertSetting(convoID, userID, "favorite", favorite)
}

func (db *DB) upsertSetting(convoID, userID, column string, value bool) error {
	// column is one of the fixed names above, never caller input.
	q := fmt.Sprintf(`
		INSERT INTO conversation_settings (conversation_id, user_id, %[1]s)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET %[1]s = excluded.%[1]s`, column)
	_, err := db.Exec(q, convoID, userID, value)
	return failure(err)
}

// DeleteConversation removes the conversation; messages and settings cascade
// via foreign keys, typing signals are cleaned up explicitly.
func (db *DB) DeleteConversation(id string) error {
	res, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return failure(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	_, err = db.Exec(`DELETE FROM typing_signals WHERE conversation_id = ?`, id)
	return failure(err)
}

// ListSummaries returns the viewer's conversation list rows ordered by last
// message time descending. Conversations with an empty preview (no messages
// yet, or cleared) are suppressed. Unread counts and mute/favorite flags are
// folded into the same query.
func (db *DB) ListSummaries(viewerID string) ([]ConversationSummary, error) {
	rows, err := db.Query(`
		SELECT c.id,
			CASE WHEN c.participant_a = ? THEN c.participant_b ELSE c.participant_a END AS other_id,
			c.last_message_text, c.last_message_at,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id AND m.sender_id != ? AND m.read_flag = 0) AS unread,
			COALESCE(s.muted, 0), COALESCE(s.favorite, 0)
		FROM conversations c
		LEFT JOIN conversation_settings s
			ON s.conversation_id = c.id AND s.user_id = ?
		WHERE (c.participant_a = ? OR c.participant_b = ?)
			AND c.last_message_text != ''
		ORDER BY c.last_message_at DESC, c.id ASC`,
		viewerID, viewerID, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, failure(err)
	}
	defer func() { _ = rows.Close() }()

	var sums []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ConversationID, &s.OtherUserID, &s.LastMessageText, &s.LastMessageAt, &s.UnreadCount, &s.Muted, &s.Favorite); err != nil {
			return nil, err
		}
		sums = append(sums, s)
	}
	return sums, failure(rows.Err())
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return failure(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
