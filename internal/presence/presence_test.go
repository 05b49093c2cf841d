package presence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeonmsg/pigeon/internal/bus"
	"github.com/pigeonmsg/pigeon/internal/store"
	"github.com/pigeonmsg/pigeon/internal/stream"
	"go.uber.org/zap"
)

func TestFormatLastSeen(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC).UnixMilli()
	cases := []struct {
		name     string
		lastSeen int64
		want     string
	}{
		{"never seen", 0, "a while ago"},
		{"seconds ago", now - 30_000, "just now"},
		{"minutes ago", now - 5*60_000, "5m ago"},
		{"hours ago", now - 3*3_600_000, "3h ago"},
		{"under the day threshold", now - 23*3_600_000, "23h ago"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatLastSeen(tc.lastSeen, now); got != tc.want {
				t.Errorf("FormatLastSeen = %q, want %q", got, tc.want)
			}
		})
	}

	// Past 24h the format switches to an absolute date.
	old := now - 26*3_600_000
	got := FormatLastSeen(old, now)
	want := time.UnixMilli(old).Format("Jan 2, 2006")
	if got != want {
		t.Errorf("FormatLastSeen(>24h) = %q, want %q", got, want)
	}
}

func testTracker(t *testing.T) (*Tracker, *store.DB, *bus.Bus) {
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
	return NewTracker(db, b, zap.NewNop()), db, b
}

func recvPresence(t *testing.T, sub *stream.Subscription[[]store.PresenceRecord]) []store.PresenceRecord {
	t.Helper()
	select {
	case sn, ok := <-sub.Snapshots():
		if !ok {
			t.Fatal("subscription closed")
		}
		if sn.Err != nil {
			t.Fatalf("snapshot error: %v", sn.Err)
		}
		return sn.Data
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	panic("unreachable")
}

func TestObserveAllSortedAndFiltered(t *testing.T) {
	tr, _, _ := testTracker(t)

	_ = tr.SetProfile("a", "Ann", "")
	_ = tr.SetProfile("b", "Bea", "")
	_ = tr.SetProfile("me", "Me", "")
	_ = tr.SetOffline("a")
	_ = tr.SetOnline("b")
	_ = tr.SetOnline("me")

	sub := tr.ObserveAll("me")
	defer sub.Cancel()

	recs := recvPresence(t, sub)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (viewer excluded)", len(recs))
	}
	if recs[0].UserID != "b" || !recs[0].Online {
		t.Errorf("first = %+v, want online b", recs[0])
	}
	if recs[1].UserID != "a" || recs[1].Online {
		t.Errorf("second = %+v, want offline a", recs[1])
	}
}

func TestObserveAllSeesTransitions(t *testing.T) {
	tr, _, _ := testTracker(t)
	_ = tr.SetProfile("a", "Ann", "")
	_ = tr.SetOnline("a")

	sub := tr.ObserveAll("")
	defer sub.Cancel()

	recs := recvPresence(t, sub)
	if len(recs) != 1 || !recs[0].Online {
		t.Fatalf("initial = %+v, want online a", recs)
	}

	if err := tr.SetOffline("a"); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case sn := <-sub.Snapshots():
			if sn.Err == nil && len(sn.Data) == 1 && !sn.Data[0].Online {
				if sn.Data[0].LastSeen == 0 {
					t.Error("offline transition did not stamp last-seen")
				}
				return
			}
		case <-deadline:
			t.Fatal("offline transition never observed")
		}
	}
}
