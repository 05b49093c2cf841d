package convo

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/store"
	"go.uber.org/zap"
)

func testService(t *testing.T) (*Service, *store.DB, *bus.Bus) {
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
	return NewService(db, b, zap.NewNop()), db, b
}

func TestFindOrCreateDirectStableID(t *testing.T) {
	s, _, _ := testService(t)

	id1, err := s.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.FindOrCreateDirect("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("sequential find-or-create returned %q then %q, want stable id", id1, id2)
	}

	// The pair is unordered: the reversed call must resolve the same thread.
	id3, err := s.FindOrCreateDirect("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if id3 != id1 {
		t.Errorf("reversed pair resolved %q, want %q", id3, id1)
	}
}

func TestFindOrCreateDirectRejectsSelf(t *testing.T) {
	s, _, _ := testService(t)

	for _, pair := range [][2]string{{"alice", "alice"}, {"", "bob"}, {"alice", ""}} {
		if _, err := s.FindOrCreateDirect(pair[0], pair[1]); !errors.Is(err, ErrInvalidParticipants) {
			t.Errorf("FindOrCreateDirect(%q, %q) err = %v, want ErrInvalidParticipants", pair[0], pair[1], err)
		}
	}
}

func TestFindOrCreateDistinctPairs(t *testing.T) {
	s, _, _ := testService(t)

	ab, _ := s.FindOrCreateDirect("alice", "bob")
	ac, err := s.FindOrCreateDirect("alice", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if ab == ac {
		t.Error("distinct pairs resolved to the same conversation")
	}
}

func TestCreatePublishesChange(t *testing.T) {
	s, _, b := testService(t)
	ch, unsub := b.Subscribe(bus.KindConversationChanged, 10)
	defer unsub()

	if _, err := s.FindOrCreateDirect("alice", "bob"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no conversation.changed event after create")
	}
}

func TestDeleteCascadesAndNotifies(t *testing.T) {
	s, db, b := testService(t)
	id, _ := s.FindOrCreateDirect("alice", "bob")
	if _, err := db.InsertMessage(&store.Message{ConversationID: id, SenderID: "alice", Body: "hi"}); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.MessageChanged(id), 10)
	defer unsub()

	if err := s.Delete(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	msgs, _ := db.ListMessages(id)
	if len(msgs) != 0 {
		t.Errorf("%d messages survived conversation delete", len(msgs))
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no message.changed event after conversation delete")
	}
}

func TestMuteFavoriteFlags(t *testing.T) {
	s, db, _ := testService(t)
	id, _ := s.FindOrCreateDirect("alice", "bob")
	_ = db.UpdatePreview(id, "hi", 1000)

	if err := s.SetMuted(id, "bob", true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFavorite(id, "bob", true); err != nil {
		t.Fatal(err)
	}

	sums, err := db.ListSummaries("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || !sums[0].Muted || !sums[0].Favorite {
		t.Errorf("summary = %+v, want muted+favorite for bob", sums)
	}

	// Flags are per viewer.
	sums, _ = db.ListSummaries("alice")
	if len(sums) != 1 || sums[0].Muted || sums[0].Favorite {
		t.Errorf("summary = %+v, want no flags for alice", sums)
	}
}
