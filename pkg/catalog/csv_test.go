package catalog

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

const sampleGrid = `Product ID;Description;ATT Color;ATT Size;DIST Retail;DIST Web;Price
1;Pine plank;Brown;S;X;;12.5
2;Oak plank;Brown;M;;x;149
3;Steel screw;Grey;S;TRUE;X;abc
`

func TestParseGridLayout(t *testing.T) {
	data, err := ParseGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("failed to parse grid: %v", err)
	}
	if got, want := data.Layout.AttributeHeaders, []string{"ATT Color", "ATT Size"}; !reflect.DeepEqual(got, want) {
		t.Errorf("attribute headers: got %v, want %v", got, want)
	}
	if got, want := data.Layout.FlagHeaders, []string{"DIST Retail", "DIST Web"}; !reflect.DeepEqual(got, want) {
		t.Errorf("flag headers: got %v, want %v", got, want)
	}
	if data.Layout.PriceHeader != "Price" {
		t.Errorf("price header: got %q, want Price", data.Layout.PriceHeader)
	}
	if len(data.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(data.Records))
	}
}

func TestParseGridValues(t *testing.T) {
	data, err := ParseGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("failed to parse grid: %v", err)
	}
	first := data.Records[0]
	if first.Id != 1 || first.Description != "Pine plank" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Price != "12.50" {
		t.Errorf("numeric price should normalize to two decimals, got %q", first.Price)
	}
	if !first.Flags["DIST Retail"] || first.Flags["DIST Web"] {
		t.Errorf("flag parse wrong: %v", first.Flags)
	}
	if !data.Records[1].Flags["DIST Web"] {
		t.Error("lowercase x should count as a mark")
	}
	third := data.Records[2]
	if !third.Flags["DIST Retail"] {
		t.Error("TRUE cell should count as a mark")
	}
	if third.Price != "abc" {
		t.Errorf("non-numeric price kept as entered, got %q", third.Price)
	}
}

func TestParseGridIdFallback(t *testing.T) {
	grid := "Product ID;Description;ATT Color\n;One;Red\nnope;Two;Blue\n"
	data, err := ParseGrid(strings.NewReader(grid))
	if err != nil {
		t.Fatalf("failed to parse grid: %v", err)
	}
	if data.Records[0].Id != 1 || data.Records[1].Id != 2 {
		t.Errorf("blank or unparseable ids should fall back to the row ordinal, got %d and %d",
			data.Records[0].Id, data.Records[1].Id)
	}
}

func TestParseGridDuplicateId(t *testing.T) {
	grid := "Product ID;Description\n7;One\n7;Two\n"
	if _, err := ParseGrid(strings.NewReader(grid)); err == nil {
		t.Error("expected error for duplicate record id")
	}
}

func TestParseGridShortRows(t *testing.T) {
	grid := "Product ID;Description;ATT Color;Price\n1;One\n"
	data, err := ParseGrid(strings.NewReader(grid))
	if err != nil {
		t.Fatalf("failed to parse grid: %v", err)
	}
	if got := data.Records[0].Attributes["ATT Color"]; got != "" {
		t.Errorf("missing cells should load as empty, got %q", got)
	}
	if data.Records[0].Price != "" {
		t.Errorf("missing price cell should load as empty, got %q", data.Records[0].Price)
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct{ in, want string }{
		{"12.5", "12.50"},
		{"149", "149.00"},
		{"abc", "abc"},
		{"", ""},
		{" 9.1 ", "9.10"},
	}
	for _, tt := range tests {
		if got := NormalizePrice(tt.in); got != tt.want {
			t.Errorf("NormalizePrice(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidPrice(t *testing.T) {
	for _, ok := range []string{"", "0", "12", "12.", "12.5", "12.50"} {
		if !ValidPrice(ok) {
			t.Errorf("ValidPrice(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"abc", "-1", "1,5", ".5", "12.5.6", " 12", "1e3"} {
		if ValidPrice(bad) {
			t.Errorf("ValidPrice(%q) = true, want false", bad)
		}
	}
}

func TestGridRoundTrip(t *testing.T) {
	data, err := ParseGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("failed to parse grid: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteGrid(&buf, data); err != nil {
		t.Fatalf("failed to write grid: %v", err)
	}
	again, err := ParseGrid(&buf)
	if err != nil {
		t.Fatalf("failed to reparse written grid: %v", err)
	}
	if !reflect.DeepEqual(data.Layout, again.Layout) {
		t.Errorf("layout changed over round trip: %+v vs %+v", data.Layout, again.Layout)
	}
	if len(again.Records) != len(data.Records) {
		t.Fatalf("record count changed: %d vs %d", len(again.Records), len(data.Records))
	}
	for i := range data.Records {
		a, b := data.Records[i], again.Records[i]
		if a.Id != b.Id || a.Description != b.Description || a.Price != b.Price {
			t.Errorf("record %d changed: %+v vs %+v", i, a, b)
		}
		if !reflect.DeepEqual(a.Attributes, b.Attributes) {
			t.Errorf("record %d attributes changed: %v vs %v", i, a.Attributes, b.Attributes)
		}
		if !reflect.DeepEqual(a.Flags, b.Flags) {
			t.Errorf("record %d flags changed: %v vs %v", i, a.Flags, b.Flags)
		}
	}
}
