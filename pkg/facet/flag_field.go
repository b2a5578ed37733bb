package facet

import (
	"github.com/matst80/slask-grid/pkg/types"
)

// FlagField indexes one boolean flag column, holding the ids that carry the
// flag. Flags are fixed at load, there is no remove path for edits.
type FlagField struct {
	Name string
	On   types.ItemList
}

func EmptyFlagField(name string) *FlagField {
	return &FlagField{
		Name: name,
		On:   types.ItemList{},
	}
}

func (f *FlagField) Add(id types.RecordId) {
	f.On.Add(id)
}

func (f *FlagField) Matches(id types.RecordId) bool {
	return f.On.Contains(id)
}

// Count returns how many visible records carry the flag, zero disables the
// flag in the filter controls.
func (f *FlagField) Count(visible types.ItemList) int {
	return f.On.IntersectionCount(visible)
}
