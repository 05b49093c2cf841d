package summary

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

func testAggregator(t *testing.T) (*Aggregator, *store.DB, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	b := bus.New()
	return NewAggregator(db, b, zap.NewNop()), db, b
}

func recvSummaries(t *testing.T, sub *stream.Subscription[[]store.ConversationSummary]) []store.ConversationSummary {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		if snap.Err != nil {
			t.Fatalf("snapshot error: %v", snap.Err)
		}
		return snap.Data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for summary snapshot")
		return nil
	}
}

func seedConversation(t *testing.T, db *store.DB, a, b, body string) string {
	t.Helper()
	c, err := db.CreateConversation(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		m := &store.Message{ConversationID: c, SenderID: b, Body: body}
		if _, err := db.InsertMessage(m); err != nil {
			t.Fatal(err)
		}
		if err := db.UpdatePreview(c, body, m.CreatedAt); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestObserveAllSuppressesEmptyPreview(t *testing.T) {
	agg, db, _ := testAggregator(t)
	seedConversation(t, db, "viewer", "bob", "hello")
	empty := seedConversation(t, db, "viewer", "carol", "")

	sub := agg.ObserveAll("viewer")
	defer sub.Cancel()

	sums := recvSummaries(t, sub)
	if len(sums) != 1 {
		t.Fatalf("got %d summaries, want 1", len(sums))
	}
	if sums[0].OtherUserID != "bob" {
		t.Errorf("OtherUserID = %q, want bob", sums[0].OtherUserID)
	}
	for _, s := range sums {
		if s.ConversationID == empty {
			t.Error("conversation without messages appeared in the list")
		}
	}
}

func TestObserveAllOrderAndUnread(t *testing.T) {
	agg, db, _ := testAggregator(t)
	older := seedConversation(t, db, "viewer", "bob", "first")
	newer := seedConversation(t, db, "viewer", "carol", "second")
	// Force a strict ordering between the two previews.
	if err := db.UpdatePreview(older, "first", 1000); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdatePreview(newer, "second", 2000); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage(&store.Message{ConversationID: newer, SenderID: "carol", Body: "again"}); err != nil {
		t.Fatal(err)
	}

	sub := agg.ObserveAll("viewer")
	defer sub.Cancel()

	sums := recvSummaries(t, sub)
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}
	if sums[0].ConversationID != newer {
		t.Errorf("first summary = %q, want most recent conversation %q", sums[0].ConversationID, newer)
	}
	if sums[0].UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2", sums[0].UnreadCount)
	}
	if sums[1].UnreadCount != 1 {
		t.Errorf("older UnreadCount = %d, want 1", sums[1].UnreadCount)
	}
}

func TestObserveAllReactsToMessageChange(t *testing.T) {
	agg, db, b := testAggregator(t)
	c := seedConversation(t, db, "viewer", "bob", "hello")

	sub := agg.ObserveAll("viewer")
	defer sub.Cancel()
	first := recvSummaries(t, sub)
	if first[0].UnreadCount != 1 {
		t.Fatalf("initial UnreadCount = %d, want 1", first[0].UnreadCount)
	}

	m := &store.Message{ConversationID: c, SenderID: "bob", Body: "more"}
	if _, err := db.InsertMessage(m); err != nil {
		t.Fatal(err)
	}
	b.Notify(bus.MessageChanged(c))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub.Snapshots():
			if snap.Err != nil {
				t.Fatal(snap.Err)
			}
			if len(snap.Data) == 1 && snap.Data[0].UnreadCount == 2 {
				return
			}
		case <-deadline:
			t.Fatal("summary never reflected the new message")
		}
	}
}

type staticResolver map[string]string

func (r staticResolver) DisplayName(userID string) string {
	if name, ok := r[userID]; ok {
		return name
	}
	return userID
}

func TestFilterByName(t *testing.T) {
	items := []store.ConversationSummary{
		{ConversationID: "c1", OtherUserID: "u-bob"},
		{ConversationID: "c2", OtherUserID: "u-carol"},
		{ConversationID: "c3", OtherUserID: "u-carl"},
	}
	resolver := staticResolver{"u-bob": "Bob Marley", "u-carol": "Carol", "u-carl": "CARL"}

	if got := FilterByName(items, "", resolver); len(got) != 3 {
		t.Errorf("empty term kept %d items, want all 3", len(got))
	}
	if got := FilterByName(items, "  ", resolver); len(got) != 3 {
		t.Errorf("blank term kept %d items, want all 3", len(got))
	}

	got := FilterByName(items, "car", resolver)
	if len(got) != 2 {
		t.Fatalf("filter %q kept %d items, want 2", "car", len(got))
	}
	if got[0].ConversationID != "c2" || got[1].ConversationID != "c3" {
		t.Errorf("filter kept %q and %q, want c2 and c3", got[0].ConversationID, got[1].ConversationID)
	}

	if got := FilterByName(items, "MARLEY", resolver); len(got) != 1 || got[0].ConversationID != "c1" {
		t.Errorf("case-insensitive filter = %+v, want only c1", got)
	}

	if got := FilterByName(items, "zzz", resolver); len(got) != 0 {
		t.Errorf("no-match filter kept %d items, want 0", len(got))
	}
}
