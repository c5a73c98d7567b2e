package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/giftchain/chain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const sessionIDLength = 8

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionManager holds the live sessions keyed by id, so each
// $path/$session is its own isolated screen.
type SessionManager struct {
	cfg         *Config
	roster      chain.Roster
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionManager(ctx context.Context, cfg *Config, roster chain.Roster) *SessionManager {
	sm := &SessionManager{
		cfg:         cfg,
		roster:      roster,
		idleTimeout: cfg.sessionTimeout,
		sessions:    make(map[string]*Session),
	}

	if sm.idleTimeout > 0 {
		go sm.reaperLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		sm.closeAll()
	}()

	return sm
}

// randomSessionID draws n characters from an alphanumeric alphabet without
// modulo bias.
func randomSessionID(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

// newSessionID returns an id no live session is using.
func (sm *SessionManager) newSessionID() string {
	for {
		id := randomSessionID(sessionIDLength)

		sm.mu.Lock()
		_, exists := sm.sessions[id]
		sm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// get returns the session for id, creating it on first use.
func (sm *SessionManager) get(id string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[id]; ok {
		return s
	}

	s := newSession(sm.cfg, id, sm.roster)
	sm.sessions[id] = s
	go s.run()

	logf(sm.cfg, "SESSIONS: Created %s (%d live)", id, len(sm.sessions))

	return s
}

func (sm *SessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return len(sm.sessions)
}

// reap ends every session idle since before cutoff.
func (sm *SessionManager) reap(cutoff time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	reaped := 0
	for id, s := range sm.sessions {
		if s.idleSince().Before(cutoff) {
			delete(sm.sessions, id)
			s.close()
			reaped++
			logf(sm.cfg, "SESSIONS: Ended idle session %s", id)
		}
	}

	return reaped
}

func (sm *SessionManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sm.reap(now.Add(-sm.idleTimeout))
		}
	}
}

func (sm *SessionManager) closeAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, s := range sm.sessions {
		delete(sm.sessions, id)
		s.close()
	}
}

func serveWS(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("session")
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		s := sm.get(id)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SESSIONS: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan any, 16),
		}

		select {
		case s.register <- client:
		case <-s.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(s)
	}
}

// serveQR renders a PNG QR code pointing at the session page, so people in
// the room can follow along on their phones.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("session") == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

// redirectNewSession sends the visitor to a fresh session.
func redirectNewSession(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := sm.newSessionID()
		logf(cfg, "SESSIONS: Redirecting %s to new session %s", realIP(r), id)
		http.Redirect(w, r, cfg.prefix+"/session/"+id, http.StatusTemporaryRedirect)
	}
}

// registerSessions sets up routes so that:
//   - $path                → redirects to a new session
//   - $path/:session       → the shared screen
//   - $path/:session/ws    → websocket for that session
//   - $path/:session/qr    → PNG QR code for the session URL
func registerSessions(cfg *Config, path string, mux *httprouter.Router, sm *SessionManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewSession(cfg, sm))
	mux.GET(cfg.prefix+path+"/:session", serveSessionPage(cfg, errs))
	mux.GET(cfg.prefix+path+"/:session/ws", serveWS(cfg, sm))
	mux.GET(cfg.prefix+path+"/:session/qr", serveQR(cfg, errs))
}
