package catalog

import (
	"errors"

	"github.com/matst80/slask-grid/pkg/facet"
	"github.com/matst80/slask-grid/pkg/types"
)

var (
	ErrUnknownRecord = errors.New("unknown record")
	ErrUnknownField  = errors.New("unknown field")
)

// Catalog is one working copy of the grid: records with their baselines, the
// attribute registry and the per-column facet indexes. Membership is fixed at
// load, edits only move values. Callers serialize access, the catalog itself
// holds no lock.
type Catalog struct {
	Records  map[types.RecordId]*types.Record
	Registry *types.Registry
	Layout   types.GridLayout

	order  []types.RecordId
	all    types.ItemList
	fields map[string]*facet.KeyField
	flags  map[string]*facet.FlagField
}

func New(data *types.BootstrapData) *Catalog {
	c := &Catalog{
		Records:  make(map[types.RecordId]*types.Record, len(data.Records)),
		Registry: types.NewRegistry(&data.Layout, data.Records),
		Layout:   data.Layout,
		order:    make([]types.RecordId, 0, len(data.Records)),
		all:      make(types.ItemList, len(data.Records)),
		fields:   make(map[string]*facet.KeyField),
		flags:    make(map[string]*facet.FlagField),
	}
	for _, name := range c.Registry.Attributes {
		c.fields[name] = facet.EmptyKeyField(name)
	}
	for _, name := range c.Registry.Flags {
		c.flags[name] = facet.EmptyFlagField(name)
	}
	for _, seed := range data.Records {
		rec := seed.Clone()
		for _, name := range c.Registry.Attributes {
			if _, ok := rec.Attributes[name]; !ok {
				rec.Attributes[name] = ""
			}
		}
		rec.TakeBaseline()
		c.Records[rec.Id] = rec
		c.order = append(c.order, rec.Id)
		c.all.Add(rec.Id)
		for name, field := range c.fields {
			field.AddValueLink(rec.Attributes[name], rec.Id)
		}
		for name, flag := range c.flags {
			if rec.HasFlag(name) {
				flag.Add(rec.Id)
			}
		}
	}
	return c
}

func (c *Catalog) Get(id types.RecordId) (*types.Record, bool) {
	rec, ok := c.Records[id]
	return rec, ok
}

func (c *Catalog) Len() int {
	return len(c.order)
}

// Match evaluates the selection: attribute entries are ANDed together, the
// tokens inside one entry are a membership test, and the flag group requires
// at least one selected flag when constrained.
func (c *Catalog) Match(f *types.Filters) types.ItemList {
	result := c.all.Clone()
	for name, entry := range f.Attributes {
		if entry.HasAll() {
			continue
		}
		field, ok := c.fields[name]
		if !ok {
			return types.ItemList{}
		}
		result.Intersect(field.Match(entry.Concrete()))
		if len(result) == 0 {
			return result
		}
	}
	if !f.Flags.HasAll() {
		flagged := types.ItemList{}
		for _, name := range f.Flags.Concrete() {
			if flag, ok := c.flags[name]; ok {
				flagged.Merge(flag.On)
			}
		}
		result.Intersect(flagged)
	}
	return result
}

// Visible returns the matching records in catalog order.
func (c *Catalog) Visible(f *types.Filters) []*types.Record {
	ids := c.Match(f)
	out := make([]*types.Record, 0, len(ids))
	for _, id := range c.order {
		if ids.Contains(id) {
			out = append(out, c.Records[id])
		}
	}
	return out
}

// Availability is the option state for one visible set: per attribute the
// registry options that at least one visible record carries, with counts,
// and the analogous flag counts. Absent option means disabled.
type Availability struct {
	Attributes map[string]map[string]int `json:"attributes"`
	Flags      map[string]int            `json:"flags"`
}

// Availability runs against the post-filter visible set, never the full
// catalog. Only registry options are reported, values introduced by
// uncommitted custom edits surface after the next reload.
func (c *Catalog) Availability(visible types.ItemList) *Availability {
	a := &Availability{
		Attributes: make(map[string]map[string]int, len(c.fields)),
		Flags:      make(map[string]int, len(c.flags)),
	}
	for _, name := range c.Registry.Attributes {
		field := c.fields[name]
		counts := make(map[string]int)
		for _, option := range c.Registry.Options(name) {
			if list, ok := field.Keys[option]; ok {
				if n := list.IntersectionCount(visible); n > 0 {
					counts[option] = n
				}
			}
		}
		a.Attributes[name] = counts
	}
	for _, name := range c.Registry.Flags {
		if n := c.flags[name].Count(visible); n > 0 {
			a.Flags[name] = n
		}
	}
	return a
}

// LiveCounts returns the full per-value counts for one attribute from the
// live index, including values no registry option covers.
func (c *Catalog) LiveCounts(name string, visible types.ItemList) (map[string]int, bool) {
	field, ok := c.fields[name]
	if !ok {
		return nil, false
	}
	return field.Counts(visible), true
}

// SetField writes a current value and keeps the facet indexes in step.
func (c *Catalog) SetField(id types.RecordId, field, value string) error {
	rec, ok := c.Records[id]
	if !ok {
		return ErrUnknownRecord
	}
	switch field {
	case types.FieldDescription:
		rec.Description = value
	case types.FieldPrice:
		rec.Price = value
	default:
		keyField, ok := c.fields[field]
		if !ok {
			return ErrUnknownField
		}
		old := rec.Attributes[field]
		if old != value {
			keyField.RemoveValueLink(old, id)
			keyField.AddValueLink(value, id)
		}
		rec.Attributes[field] = value
	}
	return nil
}

// ChangedFields lists a record's edited fields in display order.
func (c *Catalog) ChangedFields(rec *types.Record) []string {
	changed := []string{}
	if rec.IsChanged(types.FieldDescription) {
		changed = append(changed, types.FieldDescription)
	}
	for _, name := range c.Registry.Attributes {
		if rec.IsChanged(name) {
			changed = append(changed, name)
		}
	}
	if rec.IsChanged(types.FieldPrice) {
		changed = append(changed, types.FieldPrice)
	}
	return changed
}
