package sorting

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/matst80/slask-grid/pkg/types"
)

type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

func ParseDirection(s string) Direction {
	if strings.HasPrefix(strings.ToLower(s), "desc") {
		return Descending
	}
	return Ascending
}

// Sorter orders records by a single field at a time. A new sort replaces the
// previous one, criteria never compose.
type Sorter struct {
	tag language.Tag
}

func New(tag language.Tag) *Sorter {
	return &Sorter{tag: tag}
}

// PriceValue parses a price string for comparison. Every rune except digits
// and the decimal point is stripped first, an unparseable remainder counts
// as zero.
func PriceValue(s string) float64 {
	var sb strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			sb.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

// Sort orders records in place. Records must arrive in catalog order, the
// stable sort keeps that order for equal keys in both directions.
func (s *Sorter) Sort(records []*types.Record, field string, dir Direction) {
	// collators carry scratch state and are not safe for shared use
	col := collate.New(s.tag, collate.IgnoreCase)
	compare := comparator(field, col)
	slices.SortStableFunc(records, func(a, b *types.Record) int {
		c := compare(a, b)
		if dir == Descending {
			return -c
		}
		return c
	})
}

func comparator(field string, col *collate.Collator) func(a, b *types.Record) int {
	switch field {
	case types.FieldPrice:
		return func(a, b *types.Record) int {
			return cmp.Compare(PriceValue(a.Price), PriceValue(b.Price))
		}
	case types.FieldDescription:
		return func(a, b *types.Record) int {
			return col.CompareString(a.Description, b.Description)
		}
	}
	return func(a, b *types.Record) int {
		return col.CompareString(a.Attributes[field], b.Attributes[field])
	}
}
