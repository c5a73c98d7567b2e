/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const defaultRole = "Participant"

var validate = validator.New()

// Participant is one person taking part in the exchange.
type Participant struct {
	ID   int    `json:"id" yaml:"id" validate:"gt=0"`
	Name string `json:"name" yaml:"name" validate:"required"`
	Role string `json:"role" yaml:"role"`
}

// Roster is an ordered set of participants with unique ids.
// The zero value is an empty roster.
type Roster struct {
	people []Participant
	index  map[int]int
}

// NewRoster validates people and returns them as a roster, preserving order.
func NewRoster(people []Participant) (Roster, error) {
	r := Roster{
		people: make([]Participant, 0, len(people)),
		index:  make(map[int]int, len(people)),
	}

	for i, p := range people {
		if err := validate.Struct(p); err != nil {
			return Roster{}, fmt.Errorf("participant %d: %w", i+1, err)
		}
		if _, ok := r.index[p.ID]; ok {
			return Roster{}, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		if p.Role == "" {
			p.Role = defaultRole
		}

		r.index[p.ID] = len(r.people)
		r.people = append(r.people, p)
	}

	return r, nil
}

func (r Roster) Len() int {
	return len(r.people)
}

// Get returns the participant with the given id.
func (r Roster) Get(id int) (Participant, bool) {
	i, ok := r.index[id]
	if !ok {
		return Participant{}, false
	}
	return r.people[i], true
}

func (r Roster) Contains(id int) bool {
	_, ok := r.index[id]
	return ok
}

// People returns a copy of the participants in roster order.
func (r Roster) People() []Participant {
	out := make([]Participant, len(r.people))
	copy(out, r.people)
	return out
}

// SampleRoster returns a small demo roster.
func SampleRoster() Roster {
	r, _ := NewRoster([]Participant{
		{ID: 1, Name: "Sarah Alcott", Role: "PhD"},
		{ID: 2, Name: "James Vance", Role: "MSc"},
		{ID: 3, Name: "Linda Chen", Role: "PhD"},
		{ID: 4, Name: "Marco Rossi", Role: "PhD"},
		{ID: 5, Name: "Hannah Smith", Role: "PostDoc"},
		{ID: 6, Name: "Deepak Kumar", Role: "PhD"},
		{ID: 7, Name: "Alice White", Role: "Admin"},
	})
	return r
}
