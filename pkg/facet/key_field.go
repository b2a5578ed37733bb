package facet

import (
	"github.com/matst80/slask-grid/pkg/types"
)

// KeyField is the inverted index for one attribute column, current value to
// the set of record ids carrying it. Maintained incrementally as edits move
// records between values.
type KeyField struct {
	Name string
	Keys map[string]types.ItemList
}

func EmptyKeyField(name string) *KeyField {
	return &KeyField{
		Name: name,
		Keys: map[string]types.ItemList{},
	}
}

// AddValueLink links a record id to a value. Empty cells are not indexed, a
// record without a value can never satisfy a concrete token.
func (f *KeyField) AddValueLink(value string, id types.RecordId) {
	if value == "" {
		return
	}
	list, ok := f.Keys[value]
	if !ok {
		f.Keys[value] = types.ItemList{id: {}}
		return
	}
	list.Add(id)
}

func (f *KeyField) RemoveValueLink(value string, id types.RecordId) {
	list, ok := f.Keys[value]
	if !ok {
		return
	}
	delete(list, id)
	if len(list) == 0 {
		delete(f.Keys, value)
	}
}

// Match returns the union of the id sets for the given tokens, the
// membership test for one filter entry.
func (f *KeyField) Match(tokens []string) types.ItemList {
	result := types.ItemList{}
	for _, token := range tokens {
		if list, ok := f.Keys[token]; ok {
			result.Merge(list)
		}
	}
	return result
}

// Counts returns how many records of the visible set carry each indexed
// value. A value is selectable iff its count is above zero.
func (f *KeyField) Counts(visible types.ItemList) map[string]int {
	result := make(map[string]int, len(f.Keys))
	for value, list := range f.Keys {
		if n := list.IntersectionCount(visible); n > 0 {
			result[value] = n
		}
	}
	return result
}

func (f *KeyField) UniqueCount() int {
	return len(f.Keys)
}

func (f *KeyField) TotalCount() int {
	count := 0
	for _, list := range f.Keys {
		count += len(list)
	}
	return count
}
