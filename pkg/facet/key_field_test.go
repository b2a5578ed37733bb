package facet

import (
	"testing"

	"github.com/matst80/slask-grid/pkg/types"
)

func TestAddValueLink(t *testing.T) {
	f := EmptyKeyField("ATT Color")
	f.AddValueLink("Red", 1)
	f.AddValueLink("Red", 2)
	f.AddValueLink("Blue", 3)
	f.AddValueLink("", 4)

	if got := len(f.Keys["Red"]); got != 2 {
		t.Errorf("expected 2 ids for Red but got %d", got)
	}
	if f.UniqueCount() != 2 {
		t.Errorf("expected 2 distinct values but got %d", f.UniqueCount())
	}
	if f.TotalCount() != 3 {
		t.Errorf("expected 3 links but got %d", f.TotalCount())
	}
}

func TestRemoveValueLinkDropsEmptyValue(t *testing.T) {
	f := EmptyKeyField("ATT Color")
	f.AddValueLink("Red", 1)
	f.RemoveValueLink("Red", 1)
	if _, ok := f.Keys["Red"]; ok {
		t.Error("value with no remaining ids should be dropped from the index")
	}
	f.RemoveValueLink("Green", 9)
}

func TestMatchIsUnionOverTokens(t *testing.T) {
	f := EmptyKeyField("ATT Color")
	f.AddValueLink("Red", 1)
	f.AddValueLink("Red", 2)
	f.AddValueLink("Blue", 3)

	got := f.Match([]string{"Red", "Blue"})
	if len(got) != 3 {
		t.Errorf("expected [1 2 3] but got %v", got)
	}
	if got := f.Match([]string{"Green"}); len(got) != 0 {
		t.Errorf("unknown token should match nothing, got %v", got)
	}
}

func TestCountsAgainstVisibleSet(t *testing.T) {
	f := EmptyKeyField("ATT Size")
	f.AddValueLink("S", 1)
	f.AddValueLink("M", 2)
	f.AddValueLink("M", 3)

	visible := types.ItemList{1: {}, 2: {}}
	counts := f.Counts(visible)
	if counts["S"] != 1 || counts["M"] != 1 {
		t.Errorf("expected S:1 M:1 but got %v", counts)
	}
	if _, ok := counts["L"]; ok {
		t.Errorf("value without visible records should be absent, got %v", counts)
	}

	counts = f.Counts(types.ItemList{3: {}})
	if _, ok := counts["S"]; ok {
		t.Errorf("S has no visible records, should be absent, got %v", counts)
	}
}

func TestFlagField(t *testing.T) {
	f := EmptyFlagField("DIST Retail")
	f.Add(1)
	f.Add(2)

	if !f.Matches(1) || f.Matches(3) {
		t.Error("flag membership wrong")
	}
	if got := f.Count(types.ItemList{2: {}, 3: {}}); got != 1 {
		t.Errorf("got %d visible flagged records, want 1", got)
	}
	if got := f.Count(types.ItemList{3: {}}); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
