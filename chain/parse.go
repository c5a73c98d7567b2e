/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseRoster reads rows copied out of a form-responses spreadsheet.
//
// Each row is split on tabs when it contains one and on commas otherwise.
// Columns are expected in the order Timestamp, Email, Name, Role; rows with
// fewer than three columns are ignored, as is any row mentioning "timestamp"
// or "email" (the header). A missing role becomes "Participant". Ids are
// assigned from 1 in the order rows are accepted.
func ParseRoster(text string) (Roster, error) {
	var people []Participant

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "timestamp") || strings.Contains(lower, "email") {
			continue
		}

		fields := splitRow(line)
		if len(fields) < 3 {
			continue
		}

		name := strings.TrimSpace(fields[2])
		if name == "" || name == "Name" {
			continue
		}

		role := defaultRole
		if len(fields) > 3 {
			if r := strings.TrimSpace(fields[3]); r != "" {
				role = r
			}
		}

		people = append(people, Participant{
			ID:   len(people) + 1,
			Name: name,
			Role: role,
		})
	}
	if err := scanner.Err(); err != nil {
		return Roster{}, err
	}

	if len(people) == 0 {
		return Roster{}, ErrEmptyRoster
	}

	return NewRoster(people)
}

func splitRow(line string) []string {
	sep := ','
	if strings.ContainsRune(line, '\t') {
		sep = '\t'
	}

	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	fields, err := r.Read()
	if err != nil {
		return strings.Split(line, string(sep))
	}
	return fields
}

type rosterFile struct {
	Participants []Participant `yaml:"participants"`
}

// LoadRosterFile reads a roster from a YAML (or JSON) file. The document may
// be a bare list of participants or a mapping with a "participants" key.
// Entries without an id are numbered by position.
func LoadRosterFile(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster: %w", err)
	}

	var people []Participant
	if err := yaml.Unmarshal(data, &people); err != nil {
		var doc rosterFile
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return Roster{}, fmt.Errorf("parse roster %s: %w", path, err)
		}
		people = doc.Participants
	}

	if len(people) == 0 {
		return Roster{}, fmt.Errorf("%s: %w", path, ErrEmptyRoster)
	}

	for i := range people {
		if people[i].ID == 0 {
			people[i].ID = i + 1
		}
	}

	return NewRoster(people)
}
