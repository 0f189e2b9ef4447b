package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/dates"
)

// Column is a named, typed column.
type Column struct {
	Name string
	Type core.FieldType
}

// Row holds one record's coerced fields and its coercion warnings.
type Row struct {
	Fields   []core.Field
	Warnings []string
}

// Table is the typed form of one sheet.
type Table struct {
	Sheet   string
	Columns []Column
	Rows    []Row
}

// grid is an untyped sheet: header names and string cells. A nil cell is a
// value absent from its row.
type grid struct {
	sheet  string
	header []string
	rows   [][]*string
}

var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NULL": true,
	"null": true,
	"na":   true,
	"n/a":  true,
	"None": true,
	"NONE": true,
	"-":    true,
}

// IsNull reports whether a cell value is a null token.
func IsNull(s string) bool {
	return nullTokens[strings.TrimSpace(s)]
}

func buildTable(g *grid, order dates.Order) *Table {
	t := &Table{Sheet: g.sheet, Columns: make([]Column, len(g.header))}

	for c, name := range g.header {
		values := make([]string, 0, len(g.rows))
		for _, row := range g.rows {
			if c < len(row) && row[c] != nil && !IsNull(*row[c]) {
				values = append(values, strings.TrimSpace(*row[c]))
			}
		}
		t.Columns[c] = Column{Name: name, Type: InferType(values, order)}
	}

	t.Rows = make([]Row, len(g.rows))
	for r, cells := range g.rows {
		row := Row{Fields: make([]core.Field, len(g.header))}
		for c, col := range t.Columns {
			f := core.Field{Name: col.Name, Type: col.Type}
			if c >= len(cells) || cells[c] == nil || IsNull(*cells[c]) {
				f.Null = true
				row.Fields[c] = f
				continue
			}
			raw := strings.TrimSpace(*cells[c])
			value, ok := Coerce(raw, col.Type, order)
			if !ok {
				f.Null = true
				row.Warnings = append(row.Warnings,
					fmt.Sprintf("row %d column %s: cannot parse %q as %s", r+1, col.Name, raw, col.Type))
			} else {
				f.Value = value
			}
			row.Fields[c] = f
		}
		t.Rows[r] = row
	}
	return t
}

// uniqueHeader names blank columns column_N and suffixes repeated names.
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func cells(values []string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}
