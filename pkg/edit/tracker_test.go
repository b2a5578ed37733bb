package edit

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/types"
)

func testGrid(t *testing.T) *types.BootstrapData {
	t.Helper()
	grid := strings.Join([]string{
		"Product ID;Description;ATT Color;ATT Size;DIST Retail;DIST Web;Price",
		"1;Pine plank;Red;S;X;;10",
		"2;Oak plank;Red;M;;X;20",
		"3;Steel screw;Blue;L;X;X;5",
		"4;Brass hinge;;M;;;15",
	}, "\n")
	data, err := catalog.ParseGrid(strings.NewReader(grid))
	if err != nil {
		t.Fatalf("failed to parse fixture grid: %v", err)
	}
	return data
}

func newTracker(t *testing.T) (*Tracker, *catalog.Catalog) {
	t.Helper()
	c := catalog.New(testGrid(t))
	return NewTracker(c), c
}

func TestRecordEditTracksDiff(t *testing.T) {
	tr, c := newTracker(t)
	if err := tr.RecordEdit(1, types.FieldDescription, "Pine plank, planed"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if tr.Count() != 1 || !tr.HasPending() {
		t.Fatalf("expected one pending change, got %d", tr.Count())
	}
	rec, _ := c.Get(1)
	if rec.Description != "Pine plank, planed" {
		t.Errorf("edit not applied, got %q", rec.Description)
	}

	if err := tr.RecordEdit(1, types.FieldDescription, "Pine plank"); err != nil {
		t.Fatalf("revert edit failed: %v", err)
	}
	if tr.Count() != 0 || tr.HasPending() {
		t.Errorf("typing the loaded value back should clear the change, got %d pending", tr.Count())
	}
}

func TestRecordEditPriceValidation(t *testing.T) {
	tr, c := newTracker(t)
	err := tr.RecordEdit(1, types.FieldPrice, "ten")
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("got %v, want ErrInvalidPrice", err)
	}
	rec, _ := c.Get(1)
	if rec.Price != "10.00" {
		t.Errorf("rejected edit must not touch the record, got %q", rec.Price)
	}
	if tr.Count() != 0 {
		t.Errorf("rejected edit must not be tracked, got %d", tr.Count())
	}

	if err := tr.RecordEdit(1, types.FieldPrice, ""); err != nil {
		t.Errorf("clearing the price should be allowed, got %v", err)
	}
	if tr.Count() != 1 {
		t.Errorf("cleared price should be pending, got %d", tr.Count())
	}
}

func TestRecordEditUnknown(t *testing.T) {
	tr, _ := newTracker(t)
	if err := tr.RecordEdit(99, types.FieldPrice, "1"); !errors.Is(err, catalog.ErrUnknownRecord) {
		t.Errorf("got %v, want ErrUnknownRecord", err)
	}
	if err := tr.RecordEdit(1, "ATT Weight", "1"); !errors.Is(err, catalog.ErrUnknownField) {
		t.Errorf("got %v, want ErrUnknownField", err)
	}
}

func TestFlattenOrder(t *testing.T) {
	tr, _ := newTracker(t)
	tr.RecordEdit(2, types.FieldPrice, "25")
	tr.RecordEdit(2, "ATT Size", "L")
	tr.RecordEdit(1, types.FieldDescription, "Pine plank, planed")
	got := tr.Flatten()
	want := []types.ChangeTuple{
		{Id: 1, Field: types.FieldDescription, Value: "Pine plank, planed"},
		{Id: 2, Field: "ATT Size", Value: "L"},
		{Id: 2, Field: types.FieldPrice, Value: "25"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRevertAll(t *testing.T) {
	tr, c := newTracker(t)
	tr.RecordEdit(1, types.FieldDescription, "Other")
	tr.RecordEdit(3, "ATT Color", "Green")
	if err := tr.RevertAll(); err != nil {
		t.Fatalf("revert failed: %v", err)
	}
	if tr.Count() != 0 {
		t.Errorf("pending after revert: %d", tr.Count())
	}
	first, _ := c.Get(1)
	third, _ := c.Get(3)
	if first.Description != "Pine plank" || third.Attributes["ATT Color"] != "Blue" {
		t.Errorf("values not restored: %q, %q", first.Description, third.Attributes["ATT Color"])
	}
	if len(tr.Flatten()) != 0 {
		t.Error("flatten after revert should be empty")
	}
}
