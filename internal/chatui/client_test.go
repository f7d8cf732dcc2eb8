package chatui_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mwinata/crm-web-ui/internal/chatui"
	"github.com/mwinata/crm-web-ui/internal/models"
)

var testUpgrader = websocket.Upgrader{}

// newScriptedServer runs a websocket endpoint that answers every inbound frame with the
// given raw frames.
func newScriptedServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			for _, f := range frames {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runClient(t *testing.T, srv *httptest.Server, opts ...chatui.Option) *chatui.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := chatui.Dial(ctx, srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	go func() {
		_ = client.Run(ctx)
	}()
	return client
}

func waitTurnDone(t *testing.T, client *chatui.Client) chatui.Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-client.Updates():
			if u.TurnDone {
				return u
			}
		case <-client.Done():
			t.Fatal("client shut down before the turn completed")
		case <-deadline:
			t.Fatal("timed out waiting for the turn to complete")
		}
	}
}

func TestClientStreamingTurn(t *testing.T) {
	srv := newScriptedServer(t,
		`{"type":"streaming_chunk","text":"He"}`,
		`{"type":"streaming_chunk","text":"llo"}`,
		`{"type":"streaming_complete"}`,
	)
	client := runClient(t, srv)

	if !client.Send("hi") {
		t.Fatal("Send() rejected valid input")
	}
	u := waitTurnDone(t, client)
	if u.TimedOut {
		t.Fatal("turn timed out instead of completing")
	}

	msgs := client.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleBot || last.Content != "Hello" {
		t.Errorf("final bot message = %+v, want %q", last, "Hello")
	}
	if !client.InputEnabled() {
		t.Error("InputEnabled() = false after streaming_complete")
	}
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	srv := newScriptedServer(t,
		`{not json`,
		`{"type":"wat"}`,
		`{"type":"bot_response","message":"ok"}`,
	)
	client := runClient(t, srv)

	client.Send("hi")
	waitTurnDone(t, client)

	msgs := client.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "ok" {
		t.Errorf("final message = %q, want %q", last.Content, "ok")
	}
}

func TestClientWatchdog(t *testing.T) {
	// Server accepts frames and never answers.
	srv := newScriptedServer(t)
	client := runClient(t, srv, chatui.WithResponseTimeout(50*time.Millisecond))

	client.Send("hi")
	u := waitTurnDone(t, client)

	if !u.TimedOut {
		t.Error("update should report the watchdog expiry")
	}
	if !client.InputEnabled() {
		t.Error("InputEnabled() = false after watchdog expiry")
	}

	msgs := client.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleSystem {
		t.Errorf("last message role = %q, want system notice", last.Role)
	}
}

func TestClientRejectsSendWhileAwaiting(t *testing.T) {
	srv := newScriptedServer(t)
	client := runClient(t, srv)

	if !client.Send("first") {
		t.Fatal("Send() rejected valid input")
	}
	if client.Send("second") {
		t.Error("Send() accepted a message while a response is outstanding")
	}
}
