package parquet

import (
	"maps"
	"slices"
	"time"

	"github.com/poiesic/refinery/core"
)

// FieldRow is one typed field of a record row.
type FieldRow struct {
	Name    string `parquet:"name"`
	Type    string `parquet:"type"`
	Value   string `parquet:"value"`
	Null    bool   `parquet:"null"`
	Missing bool   `parquet:"missing"`
}

// RecordRow is the columnar schema of an enriched record.
type RecordRow struct {
	ID                 string     `parquet:"id"`
	Source             string     `parquet:"source"`
	Dataset            string     `parquet:"dataset"`
	Name               string     `parquet:"name"`
	Position           int64      `parquet:"position"`
	Kind               string     `parquet:"kind"`
	Sheet              string     `parquet:"sheet"`
	Row                int64      `parquet:"row"`
	Fields             []FieldRow `parquet:"fields,list"`
	Body               string     `parquet:"body"`
	Title              string     `parquet:"title"`
	Description        string     `parquet:"description"`
	Keywords           []string   `parquet:"keywords,list"`
	Locale             string     `parquet:"locale"`
	Language           string     `parquet:"language"`
	LanguageConfidence float64    `parquet:"language_confidence"`
	Topics             []string   `parquet:"topics,list"`
	WordCount          int64      `parquet:"word_count"`
	TokenCount         int64      `parquet:"token_count"`
	Fingerprint        string     `parquet:"fingerprint"`
	Flags              []string   `parquet:"flags,list"`
	Warnings           []string   `parquet:"warnings,list"`
	RetrievedAt        int64      `parquet:"retrieved_at_ms"`
	ProcessedAt        int64      `parquet:"processed_at_ms"`
}

// ChunkRow is the columnar schema of a chunk.
type ChunkRow struct {
	ChunkID  string `parquet:"chunk_id"`
	ParentID string `parquet:"parent_id"`
	Ordinal  int64  `parquet:"ordinal"`
	Start    int64  `parquet:"start"`
	End      int64  `parquet:"end"`
	Text     string `parquet:"text"`
}

var fieldTypes = map[string]core.FieldType{
	core.FieldTypeString.String():  core.FieldTypeString,
	core.FieldTypeInteger.String(): core.FieldTypeInteger,
	core.FieldTypeFloat.String():   core.FieldTypeFloat,
	core.FieldTypeDate.String():    core.FieldTypeDate,
	core.FieldTypeBoolean.String(): core.FieldTypeBoolean,
}

// NewRecordRow converts a record to its columnar form. Flags are stored as
// the sorted names of the flags that are set.
func NewRecordRow(r *core.EnrichedRecord) RecordRow {
	row := RecordRow{
		ID:                 r.ID.String(),
		Source:             r.Origin.Source,
		Dataset:            r.Origin.Dataset,
		Name:               r.Origin.Name,
		Position:           int64(r.Origin.Position),
		Kind:               r.Kind.String(),
		Sheet:              r.Sheet,
		Row:                int64(r.Row),
		Body:               r.Body,
		Title:              r.Title,
		Description:        r.Description,
		Keywords:           r.Keywords,
		Locale:             r.Locale,
		Language:           r.Language,
		LanguageConfidence: r.LanguageConfidence,
		Topics:             r.Topics,
		WordCount:          int64(r.WordCount),
		TokenCount:         int64(r.TokenCount),
		Fingerprint:        r.Fingerprint,
		Warnings:           r.Warnings,
		RetrievedAt:        r.RetrievedAt.UnixMilli(),
		ProcessedAt:        r.ProcessedAt.UnixMilli(),
	}
	for _, f := range r.Fields {
		row.Fields = append(row.Fields, FieldRow{
			Name: f.Name, Type: f.Type.String(), Value: f.Value, Null: f.Null, Missing: f.Missing,
		})
	}
	for _, name := range slices.Sorted(maps.Keys(r.Flags)) {
		if r.Flags[name] {
			row.Flags = append(row.Flags, name)
		}
	}
	return row
}

// CoreFields returns the row's fields in their core form.
func (r RecordRow) CoreFields() []core.Field {
	fields := make([]core.Field, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = core.Field{Name: f.Name, Type: fieldTypes[f.Type], Value: f.Value, Null: f.Null, Missing: f.Missing}
	}
	return fields
}

// Retrieved returns the retrieval time in UTC.
func (r RecordRow) Retrieved() time.Time {
	return time.UnixMilli(r.RetrievedAt).UTC()
}

// NewChunkRow converts a chunk to its columnar form.
func NewChunkRow(c *core.Chunk) ChunkRow {
	return ChunkRow{
		ChunkID:  c.ID.String(),
		ParentID: c.ParentID.String(),
		Ordinal:  int64(c.Ordinal),
		Start:    int64(c.Start),
		End:      int64(c.End),
		Text:     c.Text,
	}
}
