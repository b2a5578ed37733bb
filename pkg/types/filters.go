package types

import (
	"fmt"
	"slices"
	"strings"
)

// AllToken is the sentinel meaning "no constraint" for a filter entry. It is
// mutually exclusive with concrete tokens and an entry is never empty.
const AllToken = "All"

// FlagGroup is the reserved entry name addressing the boolean flag filter.
const FlagGroup = "flags"

type Entry map[string]struct{}

func NewEntry() Entry {
	return Entry{AllToken: {}}
}

func (e Entry) HasAll() bool {
	_, ok := e[AllToken]
	return ok
}

func (e Entry) Has(token string) bool {
	_, ok := e[token]
	return ok
}

// Concrete returns the selected tokens without the sentinel, sorted.
func (e Entry) Concrete() []string {
	tokens := make([]string, 0, len(e))
	for t := range e {
		if t != AllToken {
			tokens = append(tokens, t)
		}
	}
	slices.Sort(tokens)
	return tokens
}

// Tokens returns the full selection, sorted, for responses and cache keys.
func (e Entry) Tokens() []string {
	tokens := make([]string, 0, len(e))
	for t := range e {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)
	return tokens
}

// Apply replaces the entry with the next selection state, normalized so that
// picking a concrete token drops All, picking All drops everything else and
// an emptied selection falls back to All.
func (e Entry) Apply(next []string) {
	hadAll := e.HasAll()
	hasAll := slices.Contains(next, AllToken)
	clear(e)
	switch {
	case len(next) == 0:
		e[AllToken] = struct{}{}
	case hasAll && len(next) > 1 && hadAll:
		// a concrete token was just added next to the sentinel
		for _, t := range next {
			if t != AllToken {
				e[t] = struct{}{}
			}
		}
	case hasAll:
		e[AllToken] = struct{}{}
	default:
		for _, t := range next {
			e[t] = struct{}{}
		}
	}
}

func (e Entry) Clone() Entry {
	n := make(Entry, len(e))
	for t := range e {
		n[t] = struct{}{}
	}
	return n
}

// Filters is the full selection state: one entry per attribute plus the flag
// group entry.
type Filters struct {
	Attributes map[string]Entry `json:"attributes"`
	Flags      Entry            `json:"flags"`
}

func NewFilters(reg *Registry) *Filters {
	f := &Filters{
		Attributes: make(map[string]Entry, len(reg.Attributes)),
		Flags:      NewEntry(),
	}
	for _, name := range reg.Attributes {
		f.Attributes[name] = NewEntry()
	}
	return f
}

// Apply updates one entry, addressed by attribute name or FlagGroup.
func (f *Filters) Apply(name string, tokens []string) error {
	if name == FlagGroup {
		f.Flags.Apply(tokens)
		return nil
	}
	entry, ok := f.Attributes[name]
	if !ok {
		return fmt.Errorf("unknown filter %s", name)
	}
	entry.Apply(tokens)
	return nil
}

func (f *Filters) Clone() *Filters {
	n := &Filters{
		Attributes: make(map[string]Entry, len(f.Attributes)),
		Flags:      f.Flags.Clone(),
	}
	for name, entry := range f.Attributes {
		n.Attributes[name] = entry.Clone()
	}
	return n
}

// Key renders a canonical string of the whole selection, used as a cache key
// part. Attribute order is sorted so equal selections render equally.
func (f *Filters) Key() string {
	names := make([]string, 0, len(f.Attributes))
	for name := range f.Attributes {
		if !f.Attributes[name].HasAll() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(f.Attributes[name].Tokens(), "|"))
		sb.WriteByte(';')
	}
	if !f.Flags.HasAll() {
		sb.WriteString(FlagGroup)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(f.Flags.Tokens(), "|"))
	}
	return sb.String()
}
