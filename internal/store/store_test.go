package store

import (
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

func seedUsers(t *testing.T, db *DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := db.UpsertUser(&User{ID: id, Username: id}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
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

func TestCreateMessageQueuesOutbox(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	m, err := db.CreateMessage("alice", "bob", "hi", TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == "" || m.CreatedAt == 0 {
		t.Errorf("stored message missing generated fields: %+v", m)
	}
	if m.Status != StatusSent {
		t.Errorf("status = %q, want sent", m.Status)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending outbox entries, want 1", len(pending))
	}
	if pending[0].MessageID != m.ID || pending[0].ReceiverID != "bob" {
		t.Errorf("outbox entry = %+v, want message %s to bob", pending[0], m.ID)
	}
}

func TestHistoryBothDirectionsInOrder(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob", "carol")

	m1, _ := db.CreateMessage("alice", "bob", "one", TypeText)
	m2, _ := db.CreateMessage("bob", "alice", "two", TypeText)
	m3, _ := db.CreateMessage("alice", "bob", "three", TypeText)
	// Unrelated pair must not leak into the history.
	if _, err := db.CreateMessage("alice", "carol", "other", TypeText); err != nil {
		t.Fatal(err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		msgs, err := db.History(pair[0], pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 3 {
			t.Fatalf("History(%s,%s): got %d messages, want 3", pair[0], pair[1], len(msgs))
		}
		want := []string{m1.ID, m2.ID, m3.ID}
		for i, m := range msgs {
			if m.ID != want[i] {
				t.Errorf("History(%s,%s)[%d] = %s, want %s", pair[0], pair[1], i, m.ID, want[i])
			}
		}
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	if _, err := db.CreateMessage("alice", "bob", "one", TypeText); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage("alice", "bob", "two", TypeText); err != nil {
		t.Fatal(err)
	}

	n, err := db.MarkRead("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("first MarkRead affected %d rows, want 2", n)
	}

	n, err = db.MarkRead("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second MarkRead affected %d rows, want 0", n)
	}

	unread, err := db.UnreadCount("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}
}

func TestMarkReadDoesNotTouchOppositeDirection(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	if _, err := db.CreateMessage("alice", "bob", "to bob", TypeText); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage("bob", "alice", "to alice", TypeText); err != nil {
		t.Fatal(err)
	}

	if _, err := db.MarkRead("alice", "bob"); err != nil {
		t.Fatal(err)
	}

	// Bob's message to Alice must remain unread.
	unread, err := db.UnreadCount("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 1 {
		t.Errorf("unread bob->alice = %d, want 1", unread)
	}
}

func TestMarkAllRead(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob", "carol")

	if _, err := db.CreateMessage("alice", "carol", "one", TypeText); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage("bob", "carol", "two", TypeText); err != nil {
		t.Fatal(err)
	}

	n, err := db.MarkAllRead("carol")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("MarkAllRead affected %d rows, want 2", n)
	}
	for _, sender := range []string{"alice", "bob"} {
		unread, err := db.UnreadCount(sender, "carol")
		if err != nil {
			t.Fatal(err)
		}
		if unread != 0 {
			t.Errorf("unread %s->carol = %d, want 0", sender, unread)
		}
	}
}

func TestMarkDeliveredMonotonic(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	m, err := db.CreateMessage("alice", "bob", "hi", TypeText)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := db.MarkDelivered(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("sent -> delivered should change the row")
	}

	// Read is terminal: delivered must never overwrite it.
	if _, err := db.MarkRead("alice", "bob"); err != nil {
		t.Fatal(err)
	}
	changed, err = db.MarkDelivered(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("MarkDelivered regressed a read message")
	}

	got, err := db.GetMessage(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRead {
		t.Errorf("status = %q, want read", got.Status)
	}
}

func TestConversationsCollapseAndOrder(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob", "carol")

	if _, err := db.CreateMessage("alice", "bob", "a->b", TypeText); err != nil {
		t.Fatal(err)
	}
	last, err := db.CreateMessage("bob", "alice", "b->a latest", TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateMessage("carol", "alice", "c->a", TypeText); err != nil {
		t.Fatal(err)
	}

	convs, err := db.Conversations("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2 (bob collapsed, carol)", len(convs))
	}

	// carol's message is the most recent overall, so it sorts first.
	if convs[0].CounterpartID != "carol" {
		t.Errorf("convs[0] counterpart = %q, want carol", convs[0].CounterpartID)
	}
	if convs[1].CounterpartID != "bob" {
		t.Errorf("convs[1] counterpart = %q, want bob", convs[1].CounterpartID)
	}
	// Both directions with bob collapse to one entry holding the latest
	// message regardless of direction.
	if convs[1].LastMessage.ID != last.ID {
		t.Errorf("bob lastMessage = %s, want %s", convs[1].LastMessage.ID, last.ID)
	}
	if convs[1].UnreadCount != 1 {
		t.Errorf("bob unread = %d, want 1", convs[1].UnreadCount)
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("carol unread = %d, want 1", convs[0].UnreadCount)
	}
}

func TestUnreadCountMatchesPredicate(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	m1, _ := db.CreateMessage("alice", "bob", "one", TypeText)
	if _, err := db.CreateMessage("alice", "bob", "two", TypeText); err != nil {
		t.Fatal(err)
	}

	// Delivered still counts as unread.
	if _, err := db.MarkDelivered(m1.ID); err != nil {
		t.Fatal(err)
	}
	unread, err := db.UnreadCount("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 2 {
		t.Errorf("unread = %d, want 2 (delivered is not read)", unread)
	}
}

func TestOutboxRelayedIsTerminal(t *testing.T) {
	db := testDB(t)
	seedUsers(t, db, "alice", "bob")

	m, err := db.CreateMessage("alice", "bob", "hi", TypeText)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxRelayed(m.ID); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after relay", len(pending))
	}
}

func TestUserDirectory(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertUser(&User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	// Upsert updates in place.
	if err := db.UpsertUser(&User{ID: "u1", Username: "alice2"}); err != nil {
		t.Fatal(err)
	}

	u, err := db.GetUser("u1")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.Username != "alice2" {
		t.Errorf("got %+v, want username alice2", u)
	}

	ok, err := db.UserExists("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("UserExists(u1) = false, want true")
	}
	ok, err = db.UserExists("missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("UserExists(missing) = true, want false")
	}
}
