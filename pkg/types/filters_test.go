package types

import (
	"reflect"
	"testing"
)

func testRegistry() *Registry {
	layout := &GridLayout{
		IdHeader:          "Product ID",
		DescriptionHeader: "Description",
		AttributeHeaders:  []string{"ATT Color", "ATT Size"},
		FlagHeaders:       []string{"DIST Retail"},
		PriceHeader:       "Price",
	}
	records := []*Record{
		{Id: 1, Attributes: map[string]string{"ATT Color": "Red", "ATT Size": "S"}},
		{Id: 2, Attributes: map[string]string{"ATT Color": "Blue", "ATT Size": "M"}},
	}
	return NewRegistry(layout, records)
}

func TestEntryStartsAsAll(t *testing.T) {
	e := NewEntry()
	if !e.HasAll() {
		t.Errorf("new entry should contain %q, got %v", AllToken, e.Tokens())
	}
	if len(e) != 1 {
		t.Errorf("new entry should hold a single token, got %v", e.Tokens())
	}
}

func TestEntryConcreteTokenClearsAll(t *testing.T) {
	e := NewEntry()
	e.Apply([]string{AllToken, "Red"})
	if e.HasAll() {
		t.Errorf("selecting a concrete token should clear %q, got %v", AllToken, e.Tokens())
	}
	if !e.Has("Red") {
		t.Errorf("expected Red to be selected, got %v", e.Tokens())
	}
}

func TestEntryAllClearsConcreteTokens(t *testing.T) {
	e := NewEntry()
	e.Apply([]string{"Red", "Blue"})
	e.Apply([]string{"Red", "Blue", AllToken})
	if got, want := e.Tokens(), []string{AllToken}; !reflect.DeepEqual(got, want) {
		t.Errorf("selecting All should clear concrete tokens, got %v want %v", got, want)
	}
}

func TestEntryEmptySelectionRevertsToAll(t *testing.T) {
	e := NewEntry()
	e.Apply([]string{"Red"})
	e.Apply([]string{})
	if !e.HasAll() {
		t.Errorf("removing the last concrete token should revert to %q, got %v", AllToken, e.Tokens())
	}
	if len(e) != 1 {
		t.Errorf("entry should never be empty or carry extras, got %v", e.Tokens())
	}
}

func TestEntryNeverEmpty(t *testing.T) {
	e := NewEntry()
	for _, next := range [][]string{{"Red"}, {}, {AllToken}, {"Blue", "Red"}, {}} {
		e.Apply(next)
		if len(e) == 0 {
			t.Fatalf("entry became empty after applying %v", next)
		}
	}
}

func TestFiltersApplyUnknownName(t *testing.T) {
	f := NewFilters(testRegistry())
	if err := f.Apply("ATT Weight", []string{"2kg"}); err == nil {
		t.Error("expected error for unknown filter name")
	}
}

func TestFiltersApplyFlagGroup(t *testing.T) {
	f := NewFilters(testRegistry())
	if err := f.Apply(FlagGroup, []string{"DIST Retail"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Flags.HasAll() {
		t.Errorf("flag selection should clear %q, got %v", AllToken, f.Flags.Tokens())
	}
}

func TestFiltersKeyStable(t *testing.T) {
	a := NewFilters(testRegistry())
	b := NewFilters(testRegistry())
	a.Apply("ATT Color", []string{"Red"})
	a.Apply("ATT Size", []string{"S", "M"})
	b.Apply("ATT Size", []string{"M", "S"})
	b.Apply("ATT Color", []string{"Red"})
	if a.Key() != b.Key() {
		t.Errorf("equal selections should render equal keys, got %q and %q", a.Key(), b.Key())
	}
	if a.Key() == NewFilters(testRegistry()).Key() {
		t.Error("constrained selection should not share a key with the unconstrained one")
	}
}

func TestFiltersClone(t *testing.T) {
	f := NewFilters(testRegistry())
	f.Apply("ATT Color", []string{"Red"})
	c := f.Clone()
	c.Apply("ATT Color", []string{"Blue"})
	if !f.Attributes["ATT Color"].Has("Red") || f.Attributes["ATT Color"].Has("Blue") {
		t.Errorf("clone mutation leaked into the original: %v", f.Attributes["ATT Color"].Tokens())
	}
}
