// Package roster loads the team roster: the set of agents that may appear
// in a dialog, with their display names and model labels. The engine does
// not depend on the roster; it is used to label call sites, user turns,
// and generations in the view.
package roster

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Member is one roster entry.
type Member struct {
	ID          string `koanf:"id"`
	DisplayName string `koanf:"display_name"`
	Model       string `koanf:"model"`
	Role        string `koanf:"role"`
}

// Roster is the loaded team roster, indexed by member id.
type Roster struct {
	members map[string]Member
}

// Load reads a roster YAML file of the form:
//
//	members:
//	  - id: alice
//	    display_name: Alice
//	    model: sable-9
func Load(path string) (*Roster, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load roster %s: %w", path, err)
	}

	var raw struct {
		Members []Member `koanf:"members"`
	}
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, fmt.Errorf("unmarshal roster: %w", err)
	}

	r := &Roster{members: make(map[string]Member, len(raw.Members))}
	for _, m := range raw.Members {
		if m.ID == "" {
			return nil, fmt.Errorf("roster member missing id")
		}
		if _, dup := r.members[m.ID]; dup {
			return nil, fmt.Errorf("duplicate roster member %q", m.ID)
		}
		r.members[m.ID] = m
	}
	return r, nil
}

// Empty returns a roster with no members. Lookups fall back to the raw id.
func Empty() *Roster {
	return &Roster{members: make(map[string]Member)}
}

// Lookup returns the member for id, if present.
func (r *Roster) Lookup(id string) (Member, bool) {
	m, ok := r.members[id]
	return m, ok
}

// DisplayName returns the member's display name, falling back to the id
// itself for unknown members.
func (r *Roster) DisplayName(id string) string {
	if m, ok := r.members[id]; ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return id
}

// Len returns the number of roster members.
func (r *Roster) Len() int { return len(r.members) }
