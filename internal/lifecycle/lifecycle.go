// Package lifecycle holds the allowed status transitions of persisted records.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
)

var ErrIllegalTransition = errors.New("illegal status transition")
var ErrUnknownStatus = errors.New("unknown status")

type TransitionError struct {
	Machine string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Machine, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

type Machine struct {
	name    string
	initial string
	edges   map[string]map[string]struct{}
}

func New(name, initial string, edges map[string][]string) *Machine {
	m := &Machine{name: name, initial: initial, edges: make(map[string]map[string]struct{}, len(edges))}
	for from, tos := range edges {
		if _, ok := m.edges[from]; !ok {
			m.edges[from] = map[string]struct{}{}
		}
		for _, to := range tos {
			m.edges[from][to] = struct{}{}
			if _, ok := m.edges[to]; !ok {
				m.edges[to] = map[string]struct{}{}
			}
		}
	}
	return m
}

func (m *Machine) Name() string    { return m.name }
func (m *Machine) Initial() string { return m.initial }

func (m *Machine) Valid(status string) bool {
	_, ok := m.edges[status]
	return ok
}

// Transition validates a move. Staying in the same state is always allowed.
func (m *Machine) Transition(from, to string) error {
	if !m.Valid(to) {
		return fmt.Errorf("%s %q: %w", m.name, to, ErrUnknownStatus)
	}
	if from == to {
		return nil
	}
	if _, ok := m.edges[from][to]; !ok {
		return &TransitionError{Machine: m.name, From: from, To: to}
	}
	return nil
}

// Next lists the states reachable from status in one step, sorted.
func (m *Machine) Next(status string) []string {
	out := make([]string, 0, len(m.edges[status]))
	for to := range m.edges[status] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

var FormStatus = New("assessment form", "draft", map[string][]string{
	"draft":    {"active"},
	"active":   {"archived", "draft"},
	"archived": {"draft"},
})

var PostStatus = New("blog post", "draft", map[string][]string{
	"draft":     {"published", "scheduled"},
	"scheduled": {"published", "draft"},
	"published": {"draft"},
})

var CaseStudyStatus = New("case study", "draft", map[string][]string{
	"draft":     {"published"},
	"published": {"draft"},
})

var LeadStatus = New("lead", "new", map[string][]string{
	"new":       {"contacted", "lost"},
	"contacted": {"qualified", "lost"},
	"qualified": {"converted", "lost"},
	"converted": {},
	"lost":      {"new"},
})
