package types

import "slices"

// Registry is the fixed attribute universe for one catalog: the ordered
// attribute and flag names (display order = column order) and the known
// option values per attribute. Built once from a parsed grid, never mutated.
type Registry struct {
	Attributes []string
	Flags      []string
	options    map[string][]string
}

func NewRegistry(layout *GridLayout, records []*Record) *Registry {
	reg := &Registry{
		Attributes: append([]string{}, layout.AttributeHeaders...),
		Flags:      append([]string{}, layout.FlagHeaders...),
		options:    make(map[string][]string, len(layout.AttributeHeaders)),
	}
	for _, name := range reg.Attributes {
		seen := make(map[string]struct{})
		values := make([]string, 0)
		for _, r := range records {
			v := r.Attributes[name]
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		slices.Sort(values)
		reg.options[name] = values
	}
	return reg
}

// Options returns the known values for an attribute, sorted. The slice is
// shared, callers must not mutate it.
func (reg *Registry) Options(name string) []string {
	return reg.options[name]
}

func (reg *Registry) HasAttribute(name string) bool {
	return slices.Contains(reg.Attributes, name)
}

func (reg *Registry) HasFlag(name string) bool {
	return slices.Contains(reg.Flags, name)
}

// IsEditableField reports whether field names something an edit may target:
// description, price or a registered attribute. Flags are display only.
func (reg *Registry) IsEditableField(field string) bool {
	if field == FieldDescription || field == FieldPrice {
		return true
	}
	return reg.HasAttribute(field)
}
