/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package chain builds a gift-exchange chain one reveal at a time.
//
// Starting from a single participant (the starter), each reveal assigns the
// acting participant a random recipient, and that recipient acts next. The
// starter is only ever handed out as the very last recipient, so a finished
// chain is one cycle through the whole roster: nobody draws themselves,
// nobody is drawn twice, and there are no closed sub-groups.
//
// An Engine is not safe for concurrent use; it is meant to be owned by a
// single event loop.
package chain

import (
	"time"
)

// Step is one edge of the chain: Selector gives to Selected.
// Selected is nil until the step has been revealed.
type Step struct {
	Index    int          `json:"step"`
	Selector Participant  `json:"selector"`
	Selected *Participant `json:"selected,omitempty"`
	At       time.Time    `json:"timestamp"`
}

func (s Step) Pending() bool {
	return s.Selected == nil
}

// State is a point-in-time copy of an engine's state.
type State struct {
	Roster    []Participant
	Steps     []Step
	Current   *Participant
	Revealed  *Participant
	Revealing bool
	Complete  bool
}

type Option func(*Engine)

// WithSource sets the random source used by Reveal.
func WithSource(src Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.src = src
		}
	}
}

// WithClock sets the function used to timestamp steps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	roster Roster
	steps  []Step

	current   *Participant
	revealed  *Participant
	revealing bool
	complete  bool

	src Source
	now func() time.Time
}

// New returns an engine over roster with an empty chain.
func New(roster Roster, opts ...Option) *Engine {
	e := &Engine{
		roster: roster,
		src:    runtimeSource{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load replaces the roster and discards any chain built so far.
func (e *Engine) Load(roster Roster) {
	e.clearChain()
	e.roster = roster
}

// Reset returns the engine to its initial empty state.
func (e *Engine) Reset() {
	e.clearChain()
	e.roster = Roster{}
}

func (e *Engine) clearChain() {
	e.steps = nil
	e.current = nil
	e.revealed = nil
	e.revealing = false
	e.complete = false
}

func (e *Engine) Roster() Roster {
	return e.roster
}

func (e *Engine) Started() bool {
	return len(e.steps) > 0
}

func (e *Engine) Complete() bool {
	return e.complete
}

func (e *Engine) Revealing() bool {
	return e.revealing
}

// Steps returns a copy of the chain.
func (e *Engine) Steps() []Step {
	out := make([]Step, len(e.steps))
	copy(out, e.steps)
	return out
}

// Starter returns the participant who opened the chain.
func (e *Engine) Starter() (Participant, bool) {
	if len(e.steps) == 0 {
		return Participant{}, false
	}
	return e.steps[0].Selector, true
}

// Current returns the participant whose turn is on screen.
func (e *Engine) Current() (Participant, bool) {
	if e.current == nil {
		return Participant{}, false
	}
	return *e.current, true
}

// Revealed returns the most recent recipient still on display.
func (e *Engine) Revealed() (Participant, bool) {
	if e.revealed == nil {
		return Participant{}, false
	}
	return *e.revealed, true
}

func (e *Engine) State() State {
	s := State{
		Roster:    e.roster.People(),
		Steps:     e.Steps(),
		Revealing: e.revealing,
		Complete:  e.complete,
	}
	if e.current != nil {
		c := *e.current
		s.Current = &c
	}
	if e.revealed != nil {
		r := *e.revealed
		s.Revealed = &r
	}
	return s
}

// Start opens the chain with starter, who also makes the first reveal.
func (e *Engine) Start(starter Participant) error {
	if len(e.steps) > 0 {
		return ErrAlreadyStarted
	}
	if e.roster.Len() < 2 {
		return ErrRosterTooSmall
	}

	p, ok := e.roster.Get(starter.ID)
	if !ok {
		return ErrUnknownParticipant
	}

	e.steps = append(e.steps, Step{
		Index:    1,
		Selector: p,
		At:       e.now(),
	})
	e.current = &p
	e.revealed = nil
	e.complete = false

	return nil
}

// NextSelector reports who has to act next. It returns false before the
// chain is started and after it is complete.
func (e *Engine) NextSelector() (Participant, bool) {
	if len(e.steps) == 0 {
		return Participant{}, false
	}

	starter := e.steps[0].Selector

	if len(e.steps) == 1 && e.steps[0].Pending() {
		return starter, true
	}

	last := e.steps[len(e.steps)-1]
	if last.Selected != nil {
		if last.Selected.ID == starter.ID {
			return Participant{}, false
		}
		return *last.Selected, true
	}

	// Only reachable if a step was left pending past the first one.
	used := make(map[int]bool, len(e.steps))
	for _, s := range e.steps {
		used[s.Selector.ID] = true
	}
	for _, p := range e.roster.people {
		if !used[p.ID] && p.ID != starter.ID {
			return p, true
		}
	}

	return Participant{}, false
}

// Reveal draws a recipient for selector and records it in the chain.
//
// Candidates are everyone who has not been drawn yet, other than selector
// and anyone who has already acted. The starter stays out of the draw until
// they are the only candidate left, at which point they close the chain.
func (e *Engine) Reveal(selector Participant) (Step, error) {
	if len(e.steps) == 0 {
		return Step{}, ErrNotStarted
	}
	if e.complete {
		return Step{}, ErrChainComplete
	}

	next, ok := e.NextSelector()
	if !ok || next.ID != selector.ID {
		return Step{}, ErrNotYourTurn
	}

	starter := e.steps[0].Selector

	chosen, err := e.draw(next, starter)
	if err != nil {
		e.revealing = false
		return Step{}, err
	}

	var step Step
	if last := &e.steps[len(e.steps)-1]; last.Pending() && last.Selector.ID == next.ID {
		last.Selected = &chosen
		step = *last
	} else {
		step = Step{
			Index:    len(e.steps) + 1,
			Selector: next,
			Selected: &chosen,
			At:       e.now(),
		}
		e.steps = append(e.steps, step)
	}

	e.current = &next
	e.revealed = &chosen
	e.revealing = false
	if chosen.ID == starter.ID {
		e.complete = true
	}

	return step, nil
}

func (e *Engine) draw(selector, starter Participant) (Participant, error) {
	unavailable := map[int]bool{selector.ID: true}
	for _, s := range e.steps {
		if s.Selector.ID != starter.ID {
			unavailable[s.Selector.ID] = true
		}
		if s.Selected != nil {
			unavailable[s.Selected.ID] = true
		}
	}

	available := make([]Participant, 0, e.roster.Len())
	for _, p := range e.roster.people {
		if !unavailable[p.ID] {
			available = append(available, p)
		}
	}

	if len(available) == 1 && available[0].ID == starter.ID {
		return available[0], nil
	}

	pool := available[:0]
	for _, p := range available {
		if p.ID != starter.ID {
			pool = append(pool, p)
		}
	}

	if len(pool) == 0 {
		return Participant{}, ErrNoAvailableCandidate
	}

	return pool[e.src.IntN(len(pool))], nil
}

// BeginReveal marks a reveal for the current participant as in flight.
// The caller commits it later with Reveal.
func (e *Engine) BeginReveal() error {
	if e.current == nil {
		return ErrNotStarted
	}
	if !e.CanReveal(*e.current) {
		return ErrNotEligible
	}

	e.revealing = true

	return nil
}

// Select handles someone picking a name on screen: it opens the chain when
// nothing has started yet, otherwise it hands the turn to person if they are
// up next.
func (e *Engine) Select(person Participant) error {
	if len(e.steps) == 0 {
		return e.Start(person)
	}

	if !e.CanSelect(person) {
		return ErrNotEligible
	}

	p, _ := e.roster.Get(person.ID)
	e.current = &p

	return nil
}

// PassTurn moves the screen on to whoever acts next and clears the last
// reveal from display.
func (e *Engine) PassTurn() error {
	if e.revealing {
		return ErrNotEligible
	}

	next, ok := e.NextSelector()
	if !ok {
		return ErrNotEligible
	}

	e.current = &next
	e.revealed = nil

	return nil
}
