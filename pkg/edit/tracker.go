package edit

import (
	"errors"
	"fmt"
	"slices"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/types"
)

var (
	ErrInvalidPrice     = errors.New("price must be digits with an optional decimal part")
	ErrNoPendingChanges = errors.New("no pending changes")
)

// Tracker keeps the set of fields that differ from the loaded grid. It never
// stores values, the working catalog is the single source of those.
type Tracker struct {
	catalog *catalog.Catalog
	pending map[types.RecordId]map[string]struct{}
}

func NewTracker(c *catalog.Catalog) *Tracker {
	return &Tracker{
		catalog: c,
		pending: map[types.RecordId]map[string]struct{}{},
	}
}

// RecordEdit applies one field edit to the working catalog and reconciles the
// pending set against the baseline. Typing the loaded value back reverts the
// edit on the spot.
func (t *Tracker) RecordEdit(id types.RecordId, field, value string) error {
	if field == types.FieldPrice && !catalog.ValidPrice(value) {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, value)
	}
	if err := t.catalog.SetField(id, field, value); err != nil {
		return err
	}
	rec, _ := t.catalog.Get(id)
	if rec.IsChanged(field) {
		fields, ok := t.pending[id]
		if !ok {
			fields = map[string]struct{}{}
			t.pending[id] = fields
		}
		fields[field] = struct{}{}
		return nil
	}
	if fields, ok := t.pending[id]; ok {
		delete(fields, field)
		if len(fields) == 0 {
			delete(t.pending, id)
		}
	}
	return nil
}

func (t *Tracker) Count() int {
	n := 0
	for _, fields := range t.pending {
		n += len(fields)
	}
	return n
}

func (t *Tracker) HasPending() bool {
	return len(t.pending) > 0
}

// Flatten turns the pending set into commit tuples, records in id order and
// fields in grid column order.
func (t *Tracker) Flatten() []types.ChangeTuple {
	ids := make([]types.RecordId, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	tuples := make([]types.ChangeTuple, 0, t.Count())
	for _, id := range ids {
		rec, ok := t.catalog.Get(id)
		if !ok {
			continue
		}
		for _, field := range t.catalog.ChangedFields(rec) {
			value, _ := rec.FieldValue(field)
			tuples = append(tuples, types.ChangeTuple{Id: id, Field: field, Value: value})
		}
	}
	return tuples
}

// RevertAll writes every pending field back to its baseline value.
func (t *Tracker) RevertAll() error {
	for id, fields := range t.pending {
		rec, ok := t.catalog.Get(id)
		if !ok {
			continue
		}
		for field := range fields {
			value, _ := rec.BaselineValue(field)
			if err := t.catalog.SetField(id, field, value); err != nil {
				return err
			}
		}
	}
	t.pending = map[types.RecordId]map[string]struct{}{}
	return nil
}
