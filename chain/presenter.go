/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

const clockFormat = "15:04:05"

// Badge describes where a participant stands in the chain.
type Badge string

const (
	BadgeIdle     Badge = "idle"
	BadgeNow      Badge = "now"
	BadgeDone     Badge = "done"
	BadgeClickMe  Badge = "click_me"
	BadgeWaiting  Badge = "waiting"
	BadgeSelected Badge = "selected"
)

// Entry is a roster line as shown on screen.
type Entry struct {
	Participant
	Badge     Badge `json:"badge"`
	Clickable bool  `json:"clickable"`
}

type StepView struct {
	Index    int          `json:"step"`
	Selector Participant  `json:"selector"`
	Selected *Participant `json:"selected,omitempty"`
	Time     string       `json:"time"`
}

// View is everything a screen needs to draw the current state.
type View struct {
	Headline     string       `json:"headline"`
	Prompt       string       `json:"prompt"`
	Participants []Entry      `json:"participants"`
	Steps        []StepView   `json:"steps"`
	Current      *Participant `json:"current,omitempty"`
	Revealed     *Participant `json:"revealed,omitempty"`
	Next         *Participant `json:"next,omitempty"`
	Started      bool         `json:"started"`
	Revealing    bool         `json:"revealing"`
	CanReveal    bool         `json:"can_reveal"`
	Complete     bool         `json:"complete"`
	Completed    int          `json:"completed"`
	Remaining    int          `json:"remaining"`
	Total        int          `json:"total"`
}

func (e *Engine) pendingDisplay() bool {
	return e.revealed != nil || e.revealing
}

func (e *Engine) resolvedAsSelector(id int) bool {
	for _, s := range e.steps {
		if s.Selector.ID == id && s.Selected != nil {
			return true
		}
	}
	return false
}

// CanReveal reports whether p may trigger a reveal right now.
func (e *Engine) CanReveal(p Participant) bool {
	if len(e.steps) == 0 || e.pendingDisplay() || e.resolvedAsSelector(p.ID) {
		return false
	}

	next, ok := e.NextSelector()

	return ok && next.ID == p.ID
}

// CanSelect reports whether picking p on screen would do anything.
func (e *Engine) CanSelect(p Participant) bool {
	if len(e.steps) == 0 {
		return true
	}
	if e.pendingDisplay() {
		return false
	}

	next, ok := e.NextSelector()

	return ok && next.ID == p.ID
}

// View projects the engine state for rendering.
func (e *Engine) View() View {
	v := View{
		Participants: make([]Entry, 0, e.roster.Len()),
		Steps:        make([]StepView, 0, len(e.steps)),
		Started:      len(e.steps) > 0,
		Revealing:    e.revealing,
		Complete:     e.complete,
		Total:        e.roster.Len(),
	}

	selectors := make(map[int]bool, len(e.steps))
	selected := make(map[int]bool, len(e.steps))
	for _, s := range e.steps {
		selectors[s.Selector.ID] = true

		sv := StepView{
			Index:    s.Index,
			Selector: s.Selector,
			Time:     s.At.Format(clockFormat),
		}
		if s.Selected != nil {
			selected[s.Selected.ID] = true
			p := *s.Selected
			sv.Selected = &p
			v.Completed++
		}
		v.Steps = append(v.Steps, sv)
	}
	v.Remaining = v.Total - v.Completed

	if c, ok := e.Current(); ok {
		v.Current = &c
		v.CanReveal = e.CanReveal(c)
	}
	if r, ok := e.Revealed(); ok {
		v.Revealed = &r
	}
	if n, ok := e.NextSelector(); ok {
		v.Next = &n
	}

	for _, p := range e.roster.people {
		entry := Entry{
			Participant: p,
			Clickable:   e.CanSelect(p),
		}

		isCurrent := v.Current != nil && v.Current.ID == p.ID
		switch {
		case isCurrent:
			entry.Badge = BadgeNow
		case selectors[p.ID] && selected[p.ID]:
			entry.Badge = BadgeDone
		case selectors[p.ID] && entry.Clickable:
			entry.Badge = BadgeClickMe
		case selectors[p.ID]:
			entry.Badge = BadgeWaiting
		case selected[p.ID]:
			entry.Badge = BadgeSelected
		default:
			entry.Badge = BadgeIdle
		}

		v.Participants = append(v.Participants, entry)
	}

	v.Headline, v.Prompt = e.headline()

	return v
}

func (e *Engine) headline() (string, string) {
	switch {
	case e.complete:
		return "Chain Complete!", "Everyone has been assigned a friend. The loop is closed."
	case e.revealing && e.current != nil:
		return e.current.Name + "'s Turn", "Revealing..."
	case e.revealed != nil && e.current != nil:
		next, _ := e.NextSelector()
		return e.current.Name + " → " + e.revealed.Name, "Pass the turn to " + next.Name + "."
	case e.current != nil:
		return e.current.Name + "'s Turn", "Press reveal to find out who your friend is."
	case e.roster.Len() > 0:
		return "Pick a Name to Start the Chain", "The first person picks their own name."
	default:
		return "Load Participants First", "Paste a roster or load the sample to begin."
	}
}
