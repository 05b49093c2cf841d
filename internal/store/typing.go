package store

import "time"

// UpsertTypingSignal sets one user's typing state for a conversation and
// refreshes its server-stamped update time. The off transition keeps the
// record around; liveness is decided at read time against updated_at.
func (db *DB) UpsertTypingSignal(convoID, userID string, isTyping bool) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO typing_signals (conversation_id, user_id, is_typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET
			is_typing = excluded.is_typing,
			updated_at = excluded.updated_at`,
		convoID, userID, isTyping, now)
	return failure(err)
}

// ListTypingSignals returns all typing records for a conversation, live or
// not. Staleness filtering belongs to the reader.
func (db *DB) ListTypingSignals(convoID string) ([]TypingSignal, error) {
	rows, err := db.Query(`
		SELECT conversation_id, user_id, is_typing, updated_at
		FROM typing_signals
		WHERE conversation_id = ?
		ORDER BY user_id ASC`, convoID)
	if err != nil {
		return nil, failure(err)
	}
	defer func() { _ = rows.Close() }()

	var sigs []TypingSignal
	for rows.Next() {
		var s TypingSignal
		if err := rows.Scan(&s.ConversationID, &s.UserID, &s.IsTyping, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}
	return sigs, failure(rows.Err())
}
