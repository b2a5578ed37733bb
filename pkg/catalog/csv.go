package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/matst80/slask-grid/pkg/types"
)

const (
	attributePrefix = "ATT"
	flagPrefix      = "DIST"
)

var priceFormat = regexp.MustCompile(`^\d+(\.\d*)?$`)

// ValidPrice reports whether a price edit is acceptable, digits with an
// optional decimal part. Empty clears the price and is always allowed.
func ValidPrice(s string) bool {
	return s == "" || priceFormat.MatchString(s)
}

// NormalizePrice formats numeric price text with two decimals, the way the
// grid stores prices. Non-numeric text is kept as entered.
func NormalizePrice(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return trimmed
	}
	return fmt.Sprintf("%.2f", v)
}

func flagValue(cell string) bool {
	upper := strings.ToUpper(strings.TrimSpace(cell))
	return strings.Contains(upper, "X") || upper == "TRUE"
}

// ParseGrid reads a semicolon separated grid file: column 0 is the record
// id, column 1 the description, ATT-prefixed headers are attributes,
// DIST-prefixed headers are boolean flags and the last column is the price
// when its header mentions one. Unrecognized columns are dropped.
func ParseGrid(r io.Reader) (*types.BootstrapData, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("grid needs a header row with id and description columns")
	}

	headers := rows[0]
	layout := types.GridLayout{
		IdHeader:          strings.TrimSpace(headers[0]),
		DescriptionHeader: strings.TrimSpace(headers[1]),
	}
	attributeCols := map[int]string{}
	flagCols := map[int]string{}
	priceCol := -1
	for i := 2; i < len(headers); i++ {
		h := strings.TrimSpace(headers[i])
		switch {
		case strings.HasPrefix(h, attributePrefix):
			attributeCols[i] = h
			layout.AttributeHeaders = append(layout.AttributeHeaders, h)
		case strings.HasPrefix(h, flagPrefix):
			flagCols[i] = h
			layout.FlagHeaders = append(layout.FlagHeaders, h)
		case i == len(headers)-1 && strings.Contains(strings.ToLower(h), "price"):
			layout.PriceHeader = h
			priceCol = i
		}
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	data := &types.BootstrapData{Layout: layout}
	seen := make(map[types.RecordId]struct{}, len(rows))
	for ri, row := range rows[1:] {
		rec := &types.Record{
			Attributes: make(map[string]string, len(attributeCols)),
		}
		if len(flagCols) > 0 {
			rec.Flags = make(map[string]bool, len(flagCols))
		}

		rec.Id = types.RecordId(ri + 1)
		if raw := cell(row, 0); raw != "" {
			if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
				rec.Id = types.RecordId(n)
			}
		}
		if _, dup := seen[rec.Id]; dup {
			return nil, fmt.Errorf("duplicate record id %d on row %d", rec.Id, ri+2)
		}
		seen[rec.Id] = struct{}{}

		rec.Description = cell(row, 1)
		for col, name := range attributeCols {
			rec.Attributes[name] = cell(row, col)
		}
		for col, name := range flagCols {
			rec.Flags[name] = flagValue(cell(row, col))
		}
		if priceCol >= 0 {
			rec.Price = NormalizePrice(cell(row, priceCol))
		}
		data.Records = append(data.Records, rec)
	}
	return data, nil
}

// WriteGrid renders the grid back to the file layout it was parsed from.
func WriteGrid(w io.Writer, data *types.BootstrapData) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	layout := &data.Layout
	header := make([]string, 0, 2+len(layout.AttributeHeaders)+len(layout.FlagHeaders)+1)
	header = append(header, layout.IdHeader, layout.DescriptionHeader)
	header = append(header, layout.AttributeHeaders...)
	header = append(header, layout.FlagHeaders...)
	if layout.HasPrice() {
		header = append(header, layout.PriceHeader)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for _, rec := range data.Records {
		row = row[:0]
		row = append(row, strconv.FormatUint(uint64(rec.Id), 10), rec.Description)
		for _, name := range layout.AttributeHeaders {
			row = append(row, rec.Attributes[name])
		}
		for _, name := range layout.FlagHeaders {
			if rec.HasFlag(name) {
				row = append(row, "X")
			} else {
				row = append(row, "")
			}
		}
		if layout.HasPrice() {
			row = append(row, NormalizePrice(rec.Price))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
