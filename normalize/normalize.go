// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package normalize

import (
	"bytes"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/dates"
	"golang.org/x/text/encoding/charmap"
)

// Format is a tabular payload format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatJSON
	FormatJSONLines
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatJSON:
		return "json"
	case FormatJSONLines:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// Normalizer turns tabular RawRecords into NormalizedRecords.
type Normalizer struct {
	locale string
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLocale sets the locale used for records that carry none.
func WithLocale(locale string) Option {
	return func(n *Normalizer) {
		n.locale = locale
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger == nil {
			logger = slog.Default()
		}
		n.logger = logger
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("stage", "normalize")
	return n
}

// DetectFormat determines the format of raw from its extension, sniffing the
// payload when the extension says nothing.
func DetectFormat(raw *core.RawRecord) (Format, error) {
	switch raw.Ext() {
	case "csv":
		return FormatCSV, nil
	case "tsv", "tab":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONLines, nil
	case "xlsx", "xlsm":
		return FormatXLSX, nil
	case "xls", "ods":
		return FormatUnknown, fmt.Errorf("%w: %s workbooks are not supported", core.ErrUnsupportedFormat, raw.Ext())
	}
	if f := Sniff(raw.Payload); f != FormatUnknown {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, raw.Name)
}

// Sniff guesses a tabular format from the payload's leading bytes.
func Sniff(payload []byte) Format {
	if bytes.HasPrefix(payload, []byte("PK\x03\x04")) {
		return FormatXLSX
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(payload, utf8BOM), " \t\r\n")
	if len(trimmed) == 0 {
		return FormatUnknown
	}
	switch trimmed[0] {
	case '{', '[':
		return FormatJSON
	}
	line := trimmed
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	switch {
	case bytes.IndexByte(line, '\t') >= 0:
		return FormatTSV
	case bytes.IndexByte(line, ',') >= 0:
		return FormatCSV
	}
	return FormatUnknown
}

// Tables decodes raw into typed tables, one per sheet.
func (n *Normalizer) Tables(raw *core.RawRecord) ([]*Table, error) {
	format, err := DetectFormat(raw)
	if err != nil {
		return nil, err
	}

	var grids []*grid
	switch format {
	case FormatCSV:
		grids, err = readDelimited(raw.Payload, ',')
	case FormatTSV:
		grids, err = readDelimited(raw.Payload, '\t')
	case FormatJSON, FormatJSONLines:
		grids, err = readJSON(raw.Payload)
	case FormatXLSX:
		grids, err = readXLSX(raw.Payload)
	}
	if err != nil {
		return nil, err
	}

	order := dates.OrderForLocale(n.localeOf(raw))
	tables := make([]*Table, 0, len(grids))
	for _, g := range grids {
		tables = append(tables, buildTable(g, order))
	}
	n.logger.Debug("decoded tables", "source", raw.Source, "name", raw.Name, "format", format, "tables", len(tables))
	return tables, nil
}

// Normalize decodes raw into one NormalizedRecord per row. Row numbers start
// at 1 within each sheet.
func (n *Normalizer) Normalize(raw *core.RawRecord) ([]*core.NormalizedRecord, error) {
	tables, err := n.Tables(raw)
	if err != nil {
		return nil, err
	}

	var records []*core.NormalizedRecord
	for _, t := range tables {
		for i, row := range t.Rows {
			rec := core.NewNormalizedRecord(raw, core.SourceKindTabular, t.Sheet, i+1)
			if rec.Locale == "" {
				rec.Locale = n.locale
			}
			rec.Fields = row.Fields
			rec.Warnings = append(rec.Warnings, row.Warnings...)
			rec.SetBody(rec.RenderFields())
			records = append(records, rec)
		}
	}
	return records, nil
}

func (n *Normalizer) localeOf(raw *core.RawRecord) string {
	if raw.Locale != "" {
		return raw.Locale
	}
	return n.locale
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText strips a UTF-8 byte order mark and decodes payloads that are
// not valid UTF-8 as Windows-1252.
func decodeText(payload []byte) string {
	payload = bytes.TrimPrefix(payload, utf8BOM)
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}
