// A session is one shared screen. Every browser tab opened on the session
// URL mirrors the same chain; commands from any tab act on it.
//
// The chain engine is owned by the session's run loop. Websocket readers
// never touch it directly: they post commands on a channel, and the loop
// applies them one at a time and broadcasts the resulting view.
//
// Reveals are paced: "reveal" marks the reveal in flight and broadcasts
// that, and a timer posts the commit back into the loop after the configured
// delay. The timer is never cancelled; a load or reset bumps the session's
// generation so a stale commit is ignored.

package main

import (
	"errors"
	"sync"
	"time"

	"github.com/Seednode/giftchain/chain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ClientMessage is a command sent by a screen.
type ClientMessage struct {
	Type string `json:"type"`           // "load_sample", "load_paste", "select", "reveal", "pass", "reset"
	Text string `json:"text,omitempty"` // load_paste
	ID   int    `json:"id,omitempty"`   // select
}

// StateMessage carries the full view after every change.
type StateMessage struct {
	Type   string `json:"type"`             // "state"
	Source string `json:"source,omitempty"` // "sample", "paste" or "file"
	chain.View
}

// ErrorMessage is sent only to the client whose command failed, unless the
// failure leaves the session itself broken.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan any
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Session struct {
	id  string
	cfg *Config
	log *logrus.Entry

	engine     *chain.Engine
	source     string
	generation uint64
	clients    map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	commits  chan uint64
	done     chan struct{}
	stop     sync.Once

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newSession(cfg *Config, id string, roster chain.Roster) *Session {
	now := time.Now()

	s := &Session{
		id:         id,
		cfg:        cfg,
		log:        logger.WithField("session", id),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		commits:    make(chan uint64),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	s.engine = chain.New(roster, chain.WithSource(cfg.newSource("session "+id)))
	if roster.Len() > 0 {
		s.source = "file"
	}

	return s
}

func (s *Session) logf(format string, args ...any) {
	if !s.cfg.verbose {
		return
	}

	s.log.Infof(format, args...)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastActive
}

// close stops the run loop, which disconnects every client.
func (s *Session) close() {
	s.stop.Do(func() {
		close(s.done)
	})
}

func (s *Session) run() {
	for {
		select {
		case c := <-s.register:
			s.touch()
			s.clients[c] = true
			s.logf("CLIENT: %s connected (%d watching)", c.id, len(s.clients))
			s.sendTo(c, s.stateMessage())

		case c := <-s.unreg:
			s.touch()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
			}
			s.logf("CLIENT: %s disconnected (%d watching)", c.id, len(s.clients))

		case cmd := <-s.commands:
			s.touch()
			s.handleCommand(cmd)

		case gen := <-s.commits:
			s.commitReveal(gen)

		case <-s.done:
			for c := range s.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(s.clients, c)
			}
			return
		}
	}
}

func (s *Session) handleCommand(cmd command) {
	var err error

	switch cmd.msg.Type {
	case "load_sample":
		s.load(chain.SampleRoster(), "sample")

	case "load_paste":
		var roster chain.Roster
		roster, err = chain.ParseRoster(cmd.msg.Text)
		if err == nil {
			s.load(roster, "paste")
		}

	case "select":
		p, ok := s.engine.Roster().Get(cmd.msg.ID)
		if !ok {
			err = chain.ErrUnknownParticipant
			break
		}
		started := s.engine.Started()
		err = s.engine.Select(p)
		if err == nil && !started {
			s.logf("CHAIN: %q started the chain", p.Name)
		}

	case "reveal":
		err = s.beginReveal()
		if err == nil && s.engine.Revealing() {
			// The commit broadcasts again once the delay has passed.
			s.broadcast(s.stateMessage())
			return
		}

	case "pass":
		err = s.engine.PassTurn()

	case "reset":
		s.engine.Reset()
		s.source = ""
		s.generation++
		s.logf("CHAIN: Reset")

	default:
		return
	}

	if err != nil {
		s.logf("CHAIN: %s rejected: %v", cmd.msg.Type, err)
		s.sendTo(cmd.client, ErrorMessage{Type: "error", Message: userMessage(err)})
		return
	}

	s.broadcast(s.stateMessage())
}

func (s *Session) load(roster chain.Roster, source string) {
	s.engine.Load(roster)
	s.source = source
	s.generation++
	s.logf("ROSTER: Loaded %d participants from %s", roster.Len(), source)
}

func (s *Session) beginReveal() error {
	if err := s.engine.BeginReveal(); err != nil {
		return err
	}

	if s.cfg.revealDelay <= 0 {
		s.reveal()
		return nil
	}

	gen := s.generation
	time.AfterFunc(s.cfg.revealDelay, func() {
		select {
		case s.commits <- gen:
		case <-s.done:
		}
	})

	return nil
}

func (s *Session) commitReveal(gen uint64) {
	if gen != s.generation || !s.engine.Revealing() {
		return
	}

	s.reveal()
	s.broadcast(s.stateMessage())
}

func (s *Session) reveal() {
	current, _ := s.engine.Current()

	step, err := s.engine.Reveal(current)
	if err != nil {
		if errors.Is(err, chain.ErrNoAvailableCandidate) {
			s.log.WithField("selector", current.Name).Error("CHAIN: no candidate left to draw")
		}
		s.broadcast(ErrorMessage{Type: "error", Message: userMessage(err)})
		return
	}

	s.logf("CHAIN: Step %d, %q drew %q", step.Index, step.Selector.Name, step.Selected.Name)
	if s.engine.Complete() {
		s.logf("CHAIN: Complete after %d steps", step.Index)
	}
}

func (s *Session) stateMessage() StateMessage {
	return StateMessage{
		Type:   "state",
		Source: s.source,
		View:   s.engine.View(),
	}
}

func (s *Session) sendTo(c *Client, msg any) {
	if !s.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Session) broadcast(msg any) {
	for c := range s.clients {
		s.sendTo(c, msg)
	}
}

func (c *Client) readPump(s *Session) {
	defer func() {
		select {
		case s.unreg <- c:
		case <-s.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case s.commands <- command{client: c, msg: msg}:
		case <-s.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
