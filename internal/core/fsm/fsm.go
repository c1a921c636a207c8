// Package fsm provides small transition-table state machines for entity lifecycles.
package fsm

import (
	"slices"

	"motoledger/internal/core/apperror"
)

// Machine is an exhaustive transition table over a string-backed state type.
// Every known state must appear as a key, terminal states map to nil.
type Machine[S ~string] struct {
	entity      string
	transitions map[S][]S
}

// New builds a machine for the named entity.
func New[S ~string](entity string, transitions map[S][]S) *Machine[S] {
	return &Machine[S]{entity: entity, transitions: transitions}
}

// Valid reports whether s is a known state.
func (m *Machine[S]) Valid(s S) bool {
	_, ok := m.transitions[s]
	return ok
}

// Can reports whether from -> to is allowed.
func (m *Machine[S]) Can(from, to S) bool {
	return slices.Contains(m.transitions[from], to)
}

// Terminal reports whether s has no outgoing transitions.
func (m *Machine[S]) Terminal(s S) bool {
	return m.Valid(s) && len(m.transitions[s]) == 0
}

// Transition validates from -> to and returns the new state.
func (m *Machine[S]) Transition(from, to S) (S, error) {
	if !m.Can(from, to) {
		return from, apperror.NewIllegalTransition(m.entity, string(from), string(to))
	}
	return to, nil
}

// Parse validates a raw value read from storage or a request.
func (m *Machine[S]) Parse(raw string) (S, error) {
	s := S(raw)
	if !m.Valid(s) {
		return s, apperror.NewValidation("unknown "+m.entity+" state").
			WithDetail("state", raw)
	}
	return s, nil
}
