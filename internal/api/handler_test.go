package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/creatorhub/messaging/internal/auth"
	"github.com/creatorhub/messaging/internal/bus"
	"github.com/creatorhub/messaging/internal/chat"
	"github.com/creatorhub/messaging/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testSecret = "api-test-secret"

func testRouter(t *testing.T) (*gin.Engine, *store.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	svc := chat.NewService(db, bus.New(), logger)

	r := gin.New()
	NewHandler(svc, logger).Register(r, auth.NewVerifier(testSecret))
	return r, db
}

func seedUsers(t *testing.T, db *store.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := db.UpsertUser(&store.User{ID: id, Username: id}); err != nil {
			t.Fatal(err)
		}
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.Sign(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthUnauthenticated(t *testing.T) {
	r, _ := testRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSendRequiresToken(t *testing.T) {
	r, _ := testRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/chat/send", "", chat.SendRequest{
		ReceiverID: "bob", Content: "hi",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSendCreated(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice", "bob")

	w := doJSON(t, r, http.MethodPost, "/api/chat/send", "alice", chat.SendRequest{
		ReceiverID: "bob", Content: "hello",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body)
	}

	var resp struct {
		Message store.Message `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message.SenderID != "alice" {
		t.Errorf("senderId = %q, want alice (from token)", resp.Message.SenderID)
	}
	if resp.Message.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", resp.Message.Status)
	}
}

func TestSendUnknownReceiver(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice")

	w := doJSON(t, r, http.MethodPost, "/api/chat/send", "alice", chat.SendRequest{
		ReceiverID: "ghost", Content: "hi",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	msgs, err := db.History("alice", "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d stored messages after 404, want 0", len(msgs))
	}
}

func TestSendValidationFailure(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice", "bob")

	w := doJSON(t, r, http.MethodPost, "/api/chat/send", "alice", chat.SendRequest{
		ReceiverID: "bob",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHistoryBothDirections(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice", "bob")

	doJSON(t, r, http.MethodPost, "/api/chat/send", "alice", chat.SendRequest{ReceiverID: "bob", Content: "one"})
	doJSON(t, r, http.MethodPost, "/api/chat/send", "bob", chat.SendRequest{ReceiverID: "alice", Content: "two"})

	w := doJSON(t, r, http.MethodGet, "/api/chat/history/bob", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(resp.Messages))
	}
	if resp.Messages[0].Content != "one" || resp.Messages[1].Content != "two" {
		t.Errorf("order = [%s %s], want [one two]", resp.Messages[0].Content, resp.Messages[1].Content)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice")

	w := doJSON(t, r, http.MethodGet, "/api/chat/history/nobody", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); !bytes.Contains([]byte(got), []byte(`"messages":[]`)) {
		t.Errorf("body = %s, want empty array not null", got)
	}
}

func TestConversationsAndMarkRead(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice", "bob")

	doJSON(t, r, http.MethodPost, "/api/chat/send", "bob", chat.SendRequest{ReceiverID: "alice", Content: "hi"})

	w := doJSON(t, r, http.MethodGet, "/api/chat/conversations", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Conversations []store.Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].UnreadCount != 1 {
		t.Fatalf("conversations = %+v, want one entry with unread 1", resp.Conversations)
	}

	w = doJSON(t, r, http.MethodPut, "/api/chat/mark-read/bob", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var marked struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &marked); err != nil {
		t.Fatal(err)
	}
	if marked.UnreadCount != 0 {
		t.Errorf("unreadCount = %d, want 0", marked.UnreadCount)
	}

	// Repeating is a no-op with the same answer.
	w = doJSON(t, r, http.MethodPut, "/api/chat/mark-read/bob", "alice", nil)
	if w.Code != http.StatusOK {
		t.Errorf("repeated mark-read status = %d, want 200", w.Code)
	}
}

func TestMarkAllRead(t *testing.T) {
	r, db := testRouter(t)
	seedUsers(t, db, "alice", "bob", "carol")

	doJSON(t, r, http.MethodPost, "/api/chat/send", "bob", chat.SendRequest{ReceiverID: "alice", Content: "one"})
	doJSON(t, r, http.MethodPost, "/api/chat/send", "carol", chat.SendRequest{ReceiverID: "alice", Content: "two"})

	w := doJSON(t, r, http.MethodPut, "/api/chat/mark-all-read", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Marked int64 `json:"marked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Marked != 2 {
		t.Errorf("marked = %d, want 2", resp.Marked)
	}
}

func TestSyncUser(t *testing.T) {
	r, db := testRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/users", "admin", store.User{ID: "dave", Username: "dave"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}

	u, err := db.GetUser("dave")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.Username != "dave" {
		t.Errorf("user = %+v, want dave", u)
	}
}

func TestSyncUserMissingID(t *testing.T) {
	r, _ := testRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/users", "admin", store.User{Username: "anon"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
