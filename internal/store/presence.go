package store

import (
	"database/sql"
	"errors"
	"time"
)

// SetPresenceOnline marks a user online. Last-seen is left untouched; it only
// means something while the user is offline.
func (db *DB) SetPresenceOnline(userID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO presence (user_id, online, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			online = 1,
			updated_at = excluded.updated_at`,
		userID, now)
	return failure(err)
}

// SetPresenceOffline marks a user offline and stamps last-seen with the
// store clock.
func (db *DB) SetPresenceOffline(userID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO presence (user_id, online, last_seen, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			online = 0,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		userID, now, now)
	return failure(err)
}

// UpsertProfile sets the denormalized display fields on a presence record
// without touching online state.
func (db *DB) UpsertProfile(userID, displayName, avatarURL string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO presence (user_id, display_name, avatar_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		userID, displayName, avatarURL, now)
	return failure(err)
}

// GetPresence returns one user's presence record, or ErrNotFound.
func (db *DB) GetPresence(userID string) (*PresenceRecord, error) {
	var p PresenceRecord
	err := db.QueryRow(`
		SELECT user_id, online, last_seen, display_name, avatar_url
		FROM presence WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Online, &p.LastSeen, &p.DisplayName, &p.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, failure(err)
	}
	return &p, nil
}

// ListPresence returns all known presence records sorted online-first, with
// a stable secondary order by display name then user id.
func (db *DB) ListPresence() ([]PresenceRecord, error) {
	rows, err := db.Query(`
		SELECT user_id, online, last_seen, display_name, avatar_url
		FROM presence
		ORDER BY online DESC, display_name ASC, user_id ASC`)
	if err != nil {
		return nil, failure(err)
	}
	defer func() { _ = rows.Close() }()

	var recs []PresenceRecord
	for rows.Next() {
		var p PresenceRecord
		if err := rows.Scan(&p.UserID, &p.Online, &p.LastSeen, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, err
		}
		recs = append(recs, p)
	}
	return recs, failure(rows.Err())
}
