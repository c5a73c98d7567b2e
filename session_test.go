package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/giftchain/chain"
	"github.com/gorilla/websocket"
)

// wireMessage decodes either server message.
type wireMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Source  string `json:"source"`
	chain.View
}

func newTestServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errs := make(chan error, 16)
	go drainErrors(ctx, cfg, errs)

	mux, err := newRouter(ctx, cfg, errs)
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func testConfig() *Config {
	return &Config{
		port:           8080,
		revealDelay:    0,
		seed:           42,
		sessionTimeout: time.Hour,
	}
}

func dialSession(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/" + id + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}

	return msg
}

func sendMessage(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

func readState(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	msg := readMessage(t, conn)
	if msg.Type != "state" {
		t.Fatalf("expected state message, got %q (%s)", msg.Type, msg.Message)
	}

	return msg
}

func TestRootRedirectsToNewSession(t *testing.T) {
	srv := newTestServer(t, testConfig())

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	loc := resp.Header.Get("Location")
	id, ok := strings.CutPrefix(loc, "/session/")
	if !ok || len(id) != sessionIDLength {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestStaticRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"/healthz", http.StatusOK, "text/plain; charset=utf-8", "Ok"},
		{"/version", http.StatusOK, "text/plain; charset=utf-8", "giftchain v" + releaseVersion},
		{"/robots.txt", http.StatusOK, "text/plain; charset=utf-8", "Disallow: /"},
		{"/assets/app.js", http.StatusOK, "text/javascript; charset=utf-8", "load_sample"},
		{"/assets/app.css", http.StatusOK, "text/css; charset=utf-8", "#participants"},
		{"/favicons/favicon.svg", http.StatusOK, "image/svg+xml", "<svg"},
		{"/session/abcd1234", http.StatusOK, "text/html; charset=utf-8", `data-session="abcd1234"`},
		{"/session/abcd1234/qr", http.StatusOK, "image/png", "\x89PNG"},
		{"/assets/missing.js", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("content type = %q, want %q", resp.Header.Get("Content-Type"), tt.contentType)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
			if tt.status == http.StatusOK && resp.Header.Get("X-Content-Type-Options") != "nosniff" {
				t.Errorf("missing security headers")
			}
		})
	}
}

func TestSessionPlaysFullChain(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := dialSession(t, srv, "fullrun1")

	initial := readState(t, conn)
	if initial.Total != 0 || initial.Started {
		t.Fatalf("new session should be empty, got total %d started %v", initial.Total, initial.Started)
	}
	if initial.Headline != "Load Participants First" {
		t.Errorf("headline = %q", initial.Headline)
	}

	sendMessage(t, conn, ClientMessage{Type: "load_sample"})
	loaded := readState(t, conn)
	if loaded.Total != 7 || loaded.Source != "sample" {
		t.Fatalf("after load_sample: total %d source %q", loaded.Total, loaded.Source)
	}

	sendMessage(t, conn, ClientMessage{Type: "select", ID: 1})
	started := readState(t, conn)
	if !started.Started || started.Current == nil || started.Current.ID != 1 {
		t.Fatalf("select did not start the chain with participant 1: %+v", started.Current)
	}
	if !started.CanReveal {
		t.Fatalf("starter should be able to reveal")
	}

	drawn := map[int]bool{}
	var last wireMessage
	for i := 0; i < 7; i++ {
		sendMessage(t, conn, ClientMessage{Type: "reveal"})
		last = readState(t, conn)
		if last.Revealed == nil {
			t.Fatalf("reveal %d produced no recipient", i+1)
		}
		if drawn[last.Revealed.ID] {
			t.Fatalf("participant %d drawn twice", last.Revealed.ID)
		}
		drawn[last.Revealed.ID] = true

		if last.Complete {
			break
		}

		sendMessage(t, conn, ClientMessage{Type: "pass"})
		passed := readState(t, conn)
		if passed.Current == nil || passed.Current.ID != last.Revealed.ID {
			t.Fatalf("turn did not pass to the recipient")
		}
	}

	if !last.Complete {
		t.Fatalf("chain not complete after 7 reveals")
	}
	if last.Revealed.ID != 1 {
		t.Errorf("last recipient = %d, want the starter", last.Revealed.ID)
	}
	if last.Completed != 7 || last.Remaining != 0 {
		t.Errorf("completed %d remaining %d", last.Completed, last.Remaining)
	}

	sendMessage(t, conn, ClientMessage{Type: "select", ID: 2})
	rejected := readMessage(t, conn)
	if rejected.Type != "error" || rejected.Message != userMessage(chain.ErrNotEligible) {
		t.Fatalf("expected not-eligible error, got %+v", rejected)
	}

	sendMessage(t, conn, ClientMessage{Type: "reset"})
	reset := readState(t, conn)
	if reset.Total != 0 || reset.Started || reset.Source != "" {
		t.Fatalf("reset left state behind: total %d started %v", reset.Total, reset.Started)
	}
}

func TestSessionMirrorsAcrossClients(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := dialSession(t, srv, "mirror01")
	readState(t, a)

	b := dialSession(t, srv, "mirror01")
	readState(t, b)

	other := dialSession(t, srv, "other001")
	readState(t, other)

	sendMessage(t, a, ClientMessage{Type: "load_sample"})

	if got := readState(t, a).Total; got != 7 {
		t.Fatalf("sender total = %d", got)
	}
	if got := readState(t, b).Total; got != 7 {
		t.Fatalf("mirror total = %d", got)
	}

	sendMessage(t, other, ClientMessage{Type: "select", ID: 1})
	msg := readMessage(t, other)
	if msg.Type != "error" || msg.Message != userMessage(chain.ErrUnknownParticipant) {
		t.Fatalf("separate session should still be empty, got %+v", msg)
	}
}

func TestSessionPastedRoster(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := dialSession(t, srv, "paste001")
	readState(t, conn)

	text := "Timestamp\tEmail\tName\tRole\n" +
		"1/1\ta@x\tAda\tPhD\n" +
		"1/1\tb@x\tBo\tMSc\n"

	sendMessage(t, conn, ClientMessage{Type: "load_paste", Text: text})
	msg := readState(t, conn)
	if msg.Total != 2 || msg.Source != "paste" {
		t.Fatalf("total %d source %q", msg.Total, msg.Source)
	}

	sendMessage(t, conn, ClientMessage{Type: "load_paste", Text: "nothing useful"})
	bad := readMessage(t, conn)
	if bad.Type != "error" || bad.Message != userMessage(chain.ErrEmptyRoster) {
		t.Fatalf("expected empty roster error, got %+v", bad)
	}
}

func TestSessionPacedReveal(t *testing.T) {
	cfg := testConfig()
	cfg.revealDelay = 10 * time.Millisecond

	srv := newTestServer(t, cfg)
	conn := dialSession(t, srv, "paced001")
	readState(t, conn)

	sendMessage(t, conn, ClientMessage{Type: "load_sample"})
	readState(t, conn)
	sendMessage(t, conn, ClientMessage{Type: "select", ID: 3})
	readState(t, conn)

	sendMessage(t, conn, ClientMessage{Type: "reveal"})

	pending := readState(t, conn)
	if !pending.Revealing || pending.Revealed != nil {
		t.Fatalf("expected a reveal in flight, got revealing %v", pending.Revealing)
	}
	if pending.Prompt != "Revealing..." {
		t.Errorf("prompt = %q", pending.Prompt)
	}

	done := readState(t, conn)
	if done.Revealing || done.Revealed == nil {
		t.Fatalf("expected the reveal to land")
	}
	if done.Revealed.ID == 3 {
		t.Errorf("starter drew themselves")
	}
}

func TestSessionResetDropsPendingReveal(t *testing.T) {
	cfg := testConfig()
	cfg.revealDelay = 50 * time.Millisecond

	srv := newTestServer(t, cfg)
	conn := dialSession(t, srv, "stale001")
	readState(t, conn)

	sendMessage(t, conn, ClientMessage{Type: "load_sample"})
	readState(t, conn)
	sendMessage(t, conn, ClientMessage{Type: "select", ID: 1})
	readState(t, conn)
	sendMessage(t, conn, ClientMessage{Type: "reveal"})
	readState(t, conn)

	sendMessage(t, conn, ClientMessage{Type: "load_sample"})
	reloaded := readState(t, conn)
	if reloaded.Started || reloaded.Revealing {
		t.Fatalf("reload should clear the chain")
	}

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("stale reveal was committed: %+v", msg)
	}
}

func TestReapEndsIdleSessions(t *testing.T) {
	cfg := testConfig()
	cfg.sessionTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sm := newSessionManager(ctx, cfg, chain.Roster{})
	s := sm.get("idle0001")
	sm.get("idle0002")

	if sm.count() != 2 {
		t.Fatalf("count = %d, want 2", sm.count())
	}

	if n := sm.reap(time.Now().Add(-time.Hour)); n != 0 {
		t.Fatalf("reaped %d active sessions", n)
	}

	if n := sm.reap(time.Now().Add(time.Hour)); n != 2 {
		t.Fatalf("reaped %d, want 2", n)
	}
	if sm.count() != 0 {
		t.Fatalf("count after reap = %d", sm.count())
	}

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("reaped session was not closed")
	}

	if sm.get("idle0001") == s {
		t.Fatal("reaped session id should open a fresh session")
	}
}

func TestRandomSessionID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := randomSessionID(sessionIDLength)
		if len(id) != sessionIDLength {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		for _, r := range id {
			if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", r) {
				t.Fatalf("id %q contains %q", id, r)
			}
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Errorf("only %d unique ids out of 100", len(seen))
	}
}
