package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suPer8Hu/staffchat/internal/auth"
	"github.com/suPer8Hu/staffchat/internal/chat"
	"github.com/suPer8Hu/staffchat/internal/config"
	"github.com/suPer8Hu/staffchat/internal/db"
	"github.com/suPer8Hu/staffchat/internal/directory"
	"github.com/suPer8Hu/staffchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/staffchat/internal/realtime"
	"github.com/suPer8Hu/staffchat/internal/typing"
)

const testSecret = "router-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	router *gin.Engine
	users  *directory.Repo
	chats  *chat.Repo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()
	gdb, err := db.Open("sqlite:file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := directory.NewRepo(gdb)
	for _, u := range []directory.User{
		{UID: "alice", Name: "Alice", Department: "eng", Role: "dev"},
		{UID: "bob", Name: "Bob", Department: "eng", Role: "dev"},
		{UID: "carol", Name: "Carol", Department: "ops", Role: "sre"},
	} {
		u := u
		if err := users.Upsert(context.Background(), &u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	broker := realtime.NewMemoryBroker(16)
	chats := chat.NewRepo(gdb)
	tracker := typing.NewTracker(typing.NewPublishingWriter(users, broker), time.Hour, nil)
	t.Cleanup(func() {
		tracker.Close()
		_ = broker.Close()
	})

	r := NewRouter(handlers.Deps{
		Cfg:     config.Config{JWTSecret: testSecret},
		Users:   users,
		ChatSvc: chat.NewService(chats, users, chat.WithNotifier(broker)),
		Typing:  tracker,
		Broker:  broker,
	})
	return &testApp{router: r, users: users, chats: chats}
}

func token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := auth.SignJWT(uid, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (a *testApp) do(t *testing.T, method, path, uid string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, uid))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad envelope %q", method, path, w.Body.String())
	}
	return w.Code, env
}

func TestPingAndAuth(t *testing.T) {
	a := newTestApp(t)
	if code, env := a.do(t, http.MethodGet, "/ping", "", nil); code != http.StatusOK || env.Code != 0 {
		t.Fatalf("ping: %d %+v", code, env)
	}
	if code, _ := a.do(t, http.MethodGet, "/me", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	code, env := a.do(t, http.MethodGet, "/me", "alice", nil)
	var me directory.User
	_ = json.Unmarshal(env.Data, &me)
	if code != http.StatusOK || me.Name != "Alice" {
		t.Fatalf("me: %d %+v", code, me)
	}
	if code, env := a.do(t, http.MethodGet, "/nope", "", nil); code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("no route: %d %+v", code, env)
	}
}

func TestDirectoryRoutes(t *testing.T) {
	a := newTestApp(t)

	_, env := a.do(t, http.MethodGet, "/users?group=department", "alice", nil)
	var grouped struct {
		Departments map[string][]directory.User `json:"departments"`
	}
	_ = json.Unmarshal(env.Data, &grouped)
	if len(grouped.Departments["eng"]) != 2 || len(grouped.Departments["ops"]) != 1 {
		t.Fatalf("unexpected groups %+v", grouped.Departments)
	}

	_, env = a.do(t, http.MethodGet, "/users/lookup?ids=bob,ghost,carol", "alice", nil)
	var lookup struct {
		Users    []directory.User `json:"users"`
		NotFound []string         `json:"notFound"`
	}
	_ = json.Unmarshal(env.Data, &lookup)
	if len(lookup.Users) != 2 || lookup.Users[0].UID != "bob" || len(lookup.NotFound) != 1 || lookup.NotFound[0] != "ghost" {
		t.Fatalf("unexpected lookup %+v", lookup)
	}
}

func TestChatFlow(t *testing.T) {
	a := newTestApp(t)

	code, env := a.do(t, http.MethodPost, "/chats/bob/messages", "alice", gin.H{"text": "hello"})
	if code != http.StatusOK {
		t.Fatalf("send: %d %+v", code, env)
	}
	if code, _ = a.do(t, http.MethodPost, "/chats/alice/messages", "bob", gin.H{"text": "hi"}); code != http.StatusOK {
		t.Fatalf("reply: %d", code)
	}

	_, env = a.do(t, http.MethodGet, "/chats/recent", "alice", nil)
	var recent struct {
		Chats []struct {
			Counterpart directory.User  `json:"counterpart"`
			Chat        chat.RecentChat `json:"chat"`
		} `json:"chats"`
	}
	_ = json.Unmarshal(env.Data, &recent)
	if len(recent.Chats) != 1 || recent.Chats[0].Counterpart.UID != "bob" || recent.Chats[0].Chat.UnreadCount != 1 {
		t.Fatalf("unexpected recent chats %+v", recent)
	}

	_, env = a.do(t, http.MethodGet, "/chats/bob/messages?limit=10", "alice", nil)
	var page struct {
		Messages   []chat.Message `json:"messages"`
		NextBefore string         `json:"next_before"`
	}
	_ = json.Unmarshal(env.Data, &page)
	if len(page.Messages) != 2 || page.NextBefore != page.Messages[1].ID {
		t.Fatalf("unexpected page %+v", page)
	}

	_, env = a.do(t, http.MethodPost, "/chats/bob/read", "alice", nil)
	var read struct {
		Marked int64 `json:"marked"`
	}
	_ = json.Unmarshal(env.Data, &read)
	if read.Marked != 1 {
		t.Fatalf("expected 1 marked, got %d", read.Marked)
	}
	rc, err := a.chats.GetSummary(context.Background(), "alice", "bob")
	if err != nil || rc.UnreadCount != 0 {
		t.Fatalf("unread not reset: %+v err=%v", rc, err)
	}
}

func TestChatErrors(t *testing.T) {
	a := newTestApp(t)
	cases := []struct {
		path   string
		body   any
		status int
		code   int
	}{
		{"/chats/ghost/messages", gin.H{"text": "hi"}, http.StatusNotFound, 40401},
		{"/chats/alice/messages", gin.H{"text": "hi"}, http.StatusBadRequest, 10004},
		{"/chats/bob/messages", gin.H{"text": "   "}, http.StatusBadRequest, 10003},
		{"/chats/bob/messages", gin.H{}, http.StatusBadRequest, 10001},
		{"/chats/b_ob/messages", gin.H{"text": "hi"}, http.StatusBadRequest, 10005},
	}
	for _, tc := range cases {
		code, env := a.do(t, http.MethodPost, tc.path, "alice", tc.body)
		if code != tc.status || env.Code != tc.code {
			t.Fatalf("%s %v: got %d/%d want %d/%d", tc.path, tc.body, code, env.Code, tc.status, tc.code)
		}
	}
}

func TestTypingRoutes(t *testing.T) {
	a := newTestApp(t)

	a.do(t, http.MethodPost, "/chats/bob/typing", "alice", gin.H{"text": "h"})
	u, _ := a.users.Get(context.Background(), "alice")
	if !u.IsTyping {
		t.Fatalf("expected typing")
	}
	a.do(t, http.MethodDelete, "/chats/bob/typing", "alice", nil)
	u, _ = a.users.Get(context.Background(), "alice")
	if u.IsTyping {
		t.Fatalf("expected typing cleared")
	}
}

func TestChatSocket(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chats/bob?token=" + token(t, "alice")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := ws.WriteJSON(gin.H{"type": "send", "text": "over the socket"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev realtime.Event
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Kind != realtime.KindMessage {
			continue
		}
		var m chat.Message
		if err := ev.Decode(&m); err != nil || m.Text != "over the socket" || m.SenderID != "alice" {
			t.Fatalf("unexpected message %+v", m)
		}
		break
	}

	u, _ := a.users.Get(context.Background(), "alice")
	if !u.IsOnline {
		t.Fatalf("viewer should be online while the socket is open")
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u, _ = a.users.Get(context.Background(), "alice")
		if !u.IsOnline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("viewer still online after the socket closed")
}
