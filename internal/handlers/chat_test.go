package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mwinata/crm-web-ui/internal/chatui"
	"github.com/mwinata/crm-web-ui/internal/handlers"
	"github.com/mwinata/crm-web-ui/internal/models"
)

func newChatServer(t *testing.T, m handlers.Main) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{sessionID}", m.HandleChatSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialChat(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/test-session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial chat socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	ev, err := models.DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event %q: %v", data, err)
	}
	return ev
}

func TestChatSocketStreaming(t *testing.T) {
	store := newMockStore()
	m := newTestMain(t, store, mockBot{chunks: []string{"He", "llo"}}, true)
	srv := newChatServer(t, m)
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(models.Outbound{Message: "hi"}); err != nil {
		t.Fatal(err)
	}

	wantEvents := []models.Event{
		{Type: models.EventStreamingChunk, Text: "He"},
		{Type: models.EventStreamingChunk, Text: "llo"},
		{Type: models.EventStreamingComplete},
	}
	for i, want := range wantEvents {
		got := readEvent(t, conn)
		if got != want {
			t.Errorf("event[%d] = %+v, want %+v", i, got, want)
		}
	}

	// Both sides of the turn are in the session log.
	log := waitForChatLog(t, store, "test-session", 2)
	if log[0].Role != models.RoleUser || log[0].Content != "hi" {
		t.Errorf("log[0] = %+v, want user message %q", log[0], "hi")
	}
	if log[1].Role != models.RoleBot || log[1].Content != "Hello" {
		t.Errorf("log[1] = %+v, want bot message %q", log[1], "Hello")
	}
}

func TestChatSocketBotResponse(t *testing.T) {
	store := newMockStore()
	m := newTestMain(t, store, mockBot{chunks: []string{"Hi there"}}, false)
	srv := newChatServer(t, m)
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(models.Outbound{Message: "hi"}); err != nil {
		t.Fatal(err)
	}

	got := readEvent(t, conn)
	want := models.Event{Type: models.EventBotResponse, Message: "Hi there"}
	if got != want {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestChatSocketIgnoresEmptyAndMalformedFrames(t *testing.T) {
	store := newMockStore()
	m := newTestMain(t, store, mockBot{chunks: []string{"reply"}}, true)
	srv := newChatServer(t, m)
	conn := dialChat(t, srv)

	// Neither frame may trigger a bot turn or a stored message.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(models.Outbound{Message: "   "}); err != nil {
		t.Fatal(err)
	}

	// A real message still gets through afterwards.
	if err := conn.WriteJSON(models.Outbound{Message: "hello?"}); err != nil {
		t.Fatal(err)
	}
	got := readEvent(t, conn)
	if got.Type != models.EventStreamingChunk || got.Text != "reply" {
		t.Errorf("event = %+v, want first chunk of the real turn", got)
	}

	if got := readEvent(t, conn); got.Type != models.EventStreamingComplete {
		t.Errorf("event = %+v, want streaming_complete", got)
	}

	log := waitForChatLog(t, store, "test-session", 2)
	if len(log) != 2 {
		t.Errorf("chat log len = %d, want 2 (dropped frames must not be stored)", len(log))
	}
}

func TestChatClientAgainstServer(t *testing.T) {
	store := newMockStore()
	m := newTestMain(t, store, mockBot{chunks: []string{"He", "llo"}}, true)
	srv := newChatServer(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := chatui.Dial(ctx, srv.URL, testLogger())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	go func() {
		_ = client.Run(ctx)
	}()

	if !client.Send("hi") {
		t.Fatal("Send() rejected valid input")
	}

	for {
		select {
		case u := <-client.Updates():
			if !u.TurnDone {
				continue
			}
			msgs := client.Messages()
			last := msgs[len(msgs)-1]
			if last.Role != models.RoleBot || last.Content != "Hello" {
				t.Errorf("final bot message = %+v, want %q", last, "Hello")
			}
			if !client.InputEnabled() {
				t.Error("InputEnabled() = false after turn completed")
			}
			return
		case <-ctx.Done():
			t.Fatal("timed out waiting for turn to complete")
		}
	}
}

func TestChatSocketRequiresSession(t *testing.T) {
	m := newTestMain(t, newMockStore(), mockBot{}, true)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/", nil)
	w := httptest.NewRecorder()

	m.HandleChatSocket(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("HandleChatSocket() status = %v, want %v", w.Code, http.StatusBadRequest)
	}
}

