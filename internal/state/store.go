package state

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/nerrad567/upswatch/internal/wire"
)

// Result reports the effect of Store.Set.
type Result int

const (
	// Unchanged means the variable already held an equal value.
	Unchanged Result = iota
	// Created means a new variable was added.
	Created
	// Changed means an existing variable received a new value.
	Changed
)

// String returns a lower-case name for the result.
func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Changed:
		return "changed"
	default:
		return "unchanged"
	}
}

// Modified reports whether listeners need to be told about the result.
func (r Result) Modified() bool {
	return r == Created || r == Changed
}

// Variable is one node of the state tree.
type Variable struct {
	name    string
	raw     string
	display string
	flags   Flags
	aux     int
	enums   []string
}

// Name returns the variable name with the casing it was created with.
func (v *Variable) Name() string { return v.name }

// Value returns the raw value.
func (v *Variable) Value() string { return v.raw }

// Display returns the wire-escaped value.
func (v *Variable) Display() string { return v.display }

// Flags returns the flag set.
func (v *Variable) Flags() Flags { return v.flags }

// Aux returns the auxiliary integer.
func (v *Variable) Aux() int { return v.aux }

// Enums returns a copy of the escaped enumerated values in insertion order.
func (v *Variable) Enums() []string { return slices.Clone(v.enums) }

func (v *Variable) setRaw(value string) {
	v.raw = value
	v.display = wire.Escape(value)
}

// Store is a case-insensitive map of variables.
//
// Thread Safety: a Store is not safe for concurrent use. It must be
// mutated and read by a single owning goroutine.
type Store struct {
	vars map[string]*Variable
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{vars: make(map[string]*Variable)}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Set creates or updates a variable.
//
// An existing value that matches value case-insensitively is left untouched,
// including its casing, and Unchanged is returned.
func (s *Store) Set(name, value string) Result {
	k := key(name)
	if v, ok := s.vars[k]; ok {
		if strings.EqualFold(v.raw, value) {
			return Unchanged
		}
		v.setRaw(value)
		return Changed
	}

	v := &Variable{name: name}
	v.setRaw(value)
	s.vars[k] = v
	return Created
}

// Get returns the raw value of a variable.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.vars[key(name)]
	if !ok {
		return "", false
	}
	return v.raw, true
}

// Lookup returns the variable node.
func (s *Store) Lookup(name string) (*Variable, bool) {
	v, ok := s.vars[key(name)]
	return v, ok
}

// Delete removes a variable. It reports whether the variable existed.
func (s *Store) Delete(name string) bool {
	k := key(name)
	if _, ok := s.vars[k]; !ok {
		return false
	}
	delete(s.vars, k)
	return true
}

// AddEnum appends value to the variable's enumerated values.
// It reports false without error when the escaped value is already listed.
func (s *Store) AddEnum(name, value string) (bool, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	escaped := wire.Escape(value)
	if slices.Contains(v.enums, escaped) {
		return false, nil
	}
	v.enums = append(v.enums, escaped)
	return true, nil
}

// DelEnum removes value from the variable's enumerated values.
// It reports false without error when the value was not listed.
func (s *Store) DelEnum(name, value string) (bool, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	i := slices.Index(v.enums, wire.Escape(value))
	if i < 0 {
		return false, nil
	}
	v.enums = slices.Delete(v.enums, i, i+1)
	return true, nil
}

// SetFlags replaces the variable's flag set and reports whether it changed.
func (s *Store) SetFlags(name string, flags Flags) (bool, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if v.flags == flags {
		return false, nil
	}
	v.flags = flags
	return true, nil
}

// SetAux parses aux as an integer and stores it.
// It reports whether the stored value changed.
func (s *Store) SetAux(name, aux string) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(aux))
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidAux, aux)
	}
	return s.SetAuxInt(name, n)
}

// SetAuxInt stores aux and reports whether it changed.
func (s *Store) SetAuxInt(name string, aux int) (bool, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if v.aux == aux {
		return false, nil
	}
	v.aux = aux
	return true, nil
}

// Flags returns a variable's flag set.
func (s *Store) Flags(name string) (Flags, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v.flags, nil
}

// Aux returns a variable's auxiliary integer.
func (s *Store) Aux(name string) (int, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v.aux, nil
}

// Enums returns a copy of a variable's escaped enumerated values.
func (s *Store) Enums(name string) ([]string, error) {
	v, ok := s.vars[key(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v.Enums(), nil
}

// Len returns the number of variables.
func (s *Store) Len() int {
	return len(s.vars)
}

// Variables returns every variable ordered by case-folded name.
func (s *Store) Variables() []*Variable {
	keys := slices.Sorted(maps.Keys(s.vars))
	out := make([]*Variable, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.vars[k])
	}
	return out
}

// Reset removes every variable.
func (s *Store) Reset() {
	clear(s.vars)
}
