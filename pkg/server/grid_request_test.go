package server

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/types"
)

func TestGridQueryFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/grid?page=3&size=25&sort=price&dir=desc&unknown=1", nil)
	gr := makeBaseGridRequest()
	if err := GridQueryFromRequest(r, gr); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if gr.Page != 3 {
		t.Errorf("page: got %d, want 3", gr.Page)
	}
	if gr.PageSize != 25 {
		t.Errorf("size: got %d, want 25", gr.PageSize)
	}
	if gr.Sort != "price" {
		t.Errorf("sort: got %q", gr.Sort)
	}
	if gr.Dir != "desc" {
		t.Errorf("dir: got %q", gr.Dir)
	}
}

func TestGridQueryDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/grid", nil)
	gr := makeBaseGridRequest()
	if err := GridQueryFromRequest(r, gr); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if gr.Page != 0 || gr.PageSize != 50 {
		t.Errorf("defaults wrong: page=%d size=%d", gr.Page, gr.PageSize)
	}
}

func TestDecodeFiltersFromQuery(t *testing.T) {
	data, err := catalog.ParseGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("failed to parse fixture grid: %v", err)
	}
	f := types.NewFilters(types.NewRegistry(&data.Layout, data.Records))
	f.Apply("ATT Size", []string{"M"})

	query := url.Values{"f": []string{
		"ATT Color:Red||Blue",
		"flags:DIST Retail",
		"ATT Weight:1kg",
		"garbage",
		"ATT Size:",
	}}
	DecodeFiltersFromQuery(query, f)

	if got := f.Attributes["ATT Color"].Tokens(); len(got) != 2 || got[0] != "Blue" || got[1] != "Red" {
		t.Errorf("color selection wrong: %v", got)
	}
	if !f.Flags.Has("DIST Retail") || f.Flags.HasAll() {
		t.Errorf("flag selection wrong: %v", f.Flags.Tokens())
	}
	if !f.Attributes["ATT Size"].HasAll() {
		t.Errorf("empty selection should fall back to All, got %v", f.Attributes["ATT Size"].Tokens())
	}
	if _, ok := f.Attributes["ATT Weight"]; ok {
		t.Error("unknown group must not be created")
	}
}
