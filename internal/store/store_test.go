package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestCreateAndListConversations(t *testing.T) {
	db := testDB(t)

	id, err := db.CreateConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty conversation id")
	}

	for _, user := range []string{"alice", "bob"} {
		convos, err := db.ListConversationsWith(user)
		if err != nil {
			t.Fatal(err)
		}
		if len(convos) != 1 || convos[0].ID != id {
			t.Errorf("ListConversationsWith(%q) = %v, want one convo %s", user, convos, id)
		}
	}

	convos, err := db.ListConversationsWith("carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(convos) != 0 {
		t.Errorf("carol sees %d conversations, want 0", len(convos))
	}
}

func TestDriverErrorsClassifiedUnavailable(t *testing.T) {
	db := testDB(t)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := db.CreateConversation("alice", "bob"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("create on closed db err = %v, want ErrUnavailable", err)
	}
	if _, err := db.ListMessages("c1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("list on closed db err = %v, want ErrUnavailable", err)
	}
	if err := db.SetPresenceOnline("alice"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("presence write on closed db err = %v, want ErrUnavailable", err)
	}
}

func TestCreateConversationUniquePair(t *testing.T) {
	db := testDB(t)

	first, err := db.CreateConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	// A second create, even with the pair reversed, lands on the same row.
	second, err := db.CreateConversation("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("repeat create returned %q, want existing %q", second, first)
	}

	convos, err := db.ListConversationsWith("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(convos) != 1 {
		t.Errorf("%d conversations for the pair, want 1", len(convos))
	}
}

func TestGetConversationNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetConversation("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConversationHelpers(t *testing.T) {
	c := &Conversation{ID: "c1", ParticipantA: "alice", ParticipantB: "bob"}
	if !c.Has("alice") || !c.Has("bob") || c.Has("carol") {
		t.Error("Has() wrong")
	}
	if c.Other("alice") != "bob" || c.Other("bob") != "alice" {
		t.Error("Other() wrong")
	}
}

func TestInsertAndListMessagesOrdered(t *testing.T) {
	db := testDB(t)
	convoID, err := db.CreateConversation("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	// Insert with explicit timestamps to pin the ordering invariant.
	for _, row := range []struct {
		id   string
		ts   int64
		body string
	}{
		{"m-b", 2000, "second"},
		{"m-a", 1000, "first"},
		{"m-c", 2000, "second-tie"}, // same ts as m-b, id breaks the tie
	} {
		if _, err := db.Exec(`
			INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
			VALUES (?, ?, 'alice', ?, ?)`, row.id, convoID, row.body, row.ts); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := db.ListMessages(convoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	wantOrder := []string{"m-a", "m-b", "m-c"}
	for i, want := range wantOrder {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt < msgs[i-1].CreatedAt {
			t.Error("sequence not non-decreasing in creation time")
		}
	}
}

func TestInsertMessageStampsTimes(t *testing.T) {
	db := testDB(t)
	convoID, _ := db.CreateConversation("alice", "bob")

	m := &Message{ConversationID: convoID, SenderID: "alice", Body: "hi"}
	id, err := db.InsertMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.GetMessage(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.CreatedAt == 0 || got.DeliveredAt == 0 {
		t.Error("created/delivered timestamps not stamped by store")
	}
	if got.Read {
		t.Error("new message must start unread")
	}
	if got.EditedAt != 0 {
		t.Error("new message must not carry an edited time")
	}
}

func TestMarkMessageReadIdempotent(t *testing.T) {
	db := testDB(t)
	convoID, _ := db.CreateConversation("alice", "bob")
	id, err := db.InsertMessage(&Message{ConversationID: convoID, SenderID: "alice", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.MarkMessageRead(id); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessageRead(id); err != nil {
		t.Fatalf("second MarkMessageRead error = %v, want nil (idempotent)", err)
	}

	got, _ := db.GetMessage(id)
	if !got.Read {
		t.Error("read flag not set")
	}

	if err := db.MarkMessageRead("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestUpdateMessageBodySetsEditedAt(t *testing.T) {
	db := testDB(t)
	convoID, _ := db.CreateConversation("alice", "bob")
	id, _ := db.InsertMessage(&Message{ConversationID: convoID, SenderID: "alice", Body: "hi"})

	if err := db.UpdateMessageBody(id, "hello"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetMessage(id)
	if got.Body != "hello" {
		t.Errorf("body = %q, want hello", got.Body)
	}
	if got.EditedAt == 0 {
		t.Error("edited time not stamped")
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	db := testDB(t)
	convoID, _ := db.CreateConversation("alice", "bob")
	_, err := db.InsertMessage(&Message{ConversationID: convoID, SenderID: "alice", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetMuted(convoID, "bob", true); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertTypingSignal(convoID, "alice", true); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteConversation(convoID); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(convoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after cascade delete, want 0", len(msgs))
	}
	sigs, err := db.ListTypingSignals(convoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 0 {
		t.Errorf("got %d typing signals after delete, want 0", len(sigs))
	}
}

func TestCountUnread(t *testing.T) {
	db := testDB(t)
	convoID, _ := db.CreateConversation("alice", "bob")

	id1, _ := db.InsertMessage(&Message{ConversationID: convoID, SenderID: "alice", Body: "one"})
	_, _ = db.InsertMessage(&Message{ConversationID: convoID, SenderID: "alice", Body: "two"})
	_, _ = db.InsertMessage(&Message{ConversationID: convoID, SenderID: "bob", Body: "own message"})

	n, err := db.CountUnread(convoID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2 (own messages never count)", n)
	}

	if err := db.MarkMessageRead(id1); err != nil {
		t.Fatal(err)
	}
	n, _ = db.CountUnread(convoID, "bob")
	if n != 1 {
		t.Errorf("unread after markRead = %d, want 1", n)
	}
}

func TestListSummariesSuppressesEmptyPreview(t *testing.T) {
	db := testDB(t)

	// A conversation with messages and preview.
	c1, _ := db.CreateConversation("alice", "bob")
	_, _ = db.InsertMessage(&Message{ConversationID: c1, SenderID: "alice", Body: "hi"})
	if err := db.UpdatePreview(c1, "hi", 1000); err != nil {
		t.Fatal(err)
	}

	// A conversation that exists but has no preview yet.
	if _, err := db.CreateConversation("bob", "carol"); err != nil {
		t.Fatal(err)
	}

	sums, err := db.ListSummaries("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d summaries, want 1 (empty preview suppressed)", len(sums))
	}
	s := sums[0]
	if s.ConversationID != c1 || s.OtherUserID != "alice" {
		t.Errorf("summary = %+v, want convo %s with other=alice", s, c1)
	}
	if s.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", s.UnreadCount)
	}
}

func TestListSummariesFlagsAndOrder(t *testing.T) {
	db := testDB(t)

	c1, _ := db.CreateConversation("alice", "bob")
	c2, _ := db.CreateConversation("carol", "bob")
	_ = db.UpdatePreview(c1, "older", 1000)
	_ = db.UpdatePreview(c2, "newer", 2000)
	_ = db.SetMuted(c1, "bob", true)
	_ = db.SetFavorite(c2, "bob", true)

	sums, err := db.ListSummaries("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	if sums[0].ConversationID != c2 || sums[1].ConversationID != c1 {
		t.Error("summaries not ordered by last message time descending")
	}
	if !sums[0].Favorite || sums[0].Muted {
		t.Errorf("c2 flags = %+v, want favorite only", sums[0])
	}
	if !sums[1].Muted || sums[1].Favorite {
		t.Errorf("c1 flags = %+v, want muted only", sums[1])
	}
}

func TestTypingSignalUpsert(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertTypingSignal("c1", "alice", true); err != nil {
		t.Fatal(err)
	}
	sigs, err := db.ListTypingSignals("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || !sigs[0].IsTyping || sigs[0].UpdatedAt == 0 {
		t.Fatalf("sigs = %+v, want one typing signal with server timestamp", sigs)
	}
	first := sigs[0].UpdatedAt

	// Off transition keeps the record, refreshes the timestamp.
	if err := db.UpsertTypingSignal("c1", "alice", false); err != nil {
		t.Fatal(err)
	}
	sigs, _ = db.ListTypingSignals("c1")
	if len(sigs) != 1 || sigs[0].IsTyping {
		t.Fatalf("sigs = %+v, want one non-typing record", sigs)
	}
	if sigs[0].UpdatedAt < first {
		t.Error("updated_at went backwards")
	}
}

func TestPresenceLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertProfile("alice", "Alice", "https://cdn/a.png"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPresenceOnline("alice"); err != nil {
		t.Fatal(err)
	}

	p, err := db.GetPresence("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Online || p.DisplayName != "Alice" {
		t.Errorf("presence = %+v, want online Alice", p)
	}
	if p.LastSeen != 0 {
		t.Error("last_seen must stay zero while never offline")
	}

	if err := db.SetPresenceOffline("alice"); err != nil {
		t.Fatal(err)
	}
	p, _ = db.GetPresence("alice")
	if p.Online {
		t.Error("still online after SetPresenceOffline")
	}
	if p.LastSeen == 0 {
		t.Error("last_seen not stamped on offline transition")
	}
}

func TestListPresenceOnlineFirst(t *testing.T) {
	db := testDB(t)

	_ = db.UpsertProfile("a", "Ann", "")
	_ = db.UpsertProfile("b", "Bea", "")
	_ = db.UpsertProfile("c", "Cal", "")
	_ = db.SetPresenceOffline("a")
	_ = db.SetPresenceOnline("b")
	_ = db.SetPresenceOffline("c")

	recs, err := db.ListPresence()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].UserID != "b" {
		t.Errorf("first record = %q, want online user b", recs[0].UserID)
	}
	if recs[1].UserID != "a" || recs[2].UserID != "c" {
		t.Error("offline users not in stable display-name order")
	}
}
