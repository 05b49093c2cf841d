package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertMessage stores a new message and returns its store-assigned id.
// Created and delivered timestamps are stamped here; the read flag starts
// false. Reply-reference fields carry a snapshot of the referenced message
// so the reference survives a later edit or delete of the original.
func (db *DB) InsertMessage(m *Message) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, body,
			reply_to_id, reply_to_text, reply_to_sender, image_ref,
			created_at, read_flag, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		id, m.ConversationID, m.SenderID, m.Body,
		m.ReplyToID, m.ReplyToBody, m.ReplyToSender, m.ImageRef,
		now, now)
	if err != nil {
		return "", failure(fmt.Errorf("insert message: %w", err))
	}
	m.ID = id
	m.CreatedAt = now
	m.DeliveredAt = now
	return id, nil
}

// ListMessages returns the full ordered message sequence for a conversation:
// creation time ascending, ties broken by id.
func (db *DB) ListMessages(convoID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, sender_id, body,
			reply_to_id, reply_to_text, reply_to_sender, image_ref,
			created_at, edited_at, read_flag, delivered_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`, convoID)
	if err != nil {
		return nil, failure(err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body,
			&m.ReplyToID, &m.ReplyToBody, &m.ReplyToSender, &m.ImageRef,
			&m.CreatedAt, &m.EditedAt, &m.Read, &m.DeliveredAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, failure(rows.Err())
}

// GetMessage returns a single message, or ErrNotFound.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, conversation_id, sender_id, body,
			reply_to_id, reply_to_text, reply_to_sender, image_ref,
			created_at, edited_at, read_flag, delivered_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body,
			&m.ReplyToID, &m.ReplyToBody, &m.ReplyToSender, &m.ImageRef,
			&m.CreatedAt, &m.EditedAt, &m.Read, &m.DeliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, failure(err)
	}
	return &m, nil
}

// UpdateMessageBody replaces the message text and stamps the edited time.
func (db *DB) UpdateMessageBody(id, body string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE messages SET body = ?, edited_at = ? WHERE id = ?`, body, now, id)
	if err != nil {
		return failure(err)
	}
	return requireRow(res)
}

// DeleteMessage hard-deletes a single message.
func (db *DB) DeleteMessage(id string) error {
	res, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return failure(err)
	}
	return requireRow(res)
}

// MarkMessageRead flips the read flag to true. Idempotent: the flag is
// monotonic and marking an already-read message changes nothing.
func (db *DB) MarkMessageRead(id string) error {
	res, err := db.Exec(`UPDATE messages SET read_flag = 1 WHERE id = ?`, id)
	if err != nil {
		return failure(err)
	}
	return requireRow(res)
}

// DeleteMessagesIn removes every message in a conversation.
func (db *DB) DeleteMessagesIn(convoID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, convoID)
	return failure(err)
}

// CountUnread returns the number of messages in the conversation not sent by
// the viewer and not yet read.
func (db *DB) CountUnread(convoID, viewerID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND sender_id != ? AND read_flag = 0`,
		convoID, viewerID).Scan(&n)
	return n, failure(err)
}
