package normalize

import (
	"testing"
	"time"

	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func rawRecord(name, payload string) *core.RawRecord {
	return &core.RawRecord{
		Source:      "ons",
		Dataset:     "population",
		Name:        name,
		RetrievedAt: time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC),
		Payload:     []byte(payload),
	}
}

func fieldValue(t *testing.T, rec *core.NormalizedRecord, name string) core.Field {
	t.Helper()
	f, ok := rec.Field(name)
	require.True(t, ok, "field %s missing", name)
	return *f
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Format
	}{
		{"a.csv", "", FormatCSV},
		{"a.TSV", "", FormatTSV},
		{"a.json", "", FormatJSON},
		{"a.ndjson", "", FormatJSONLines},
		{"a.xlsx", "", FormatXLSX},
		{"export", "[{\"a\":1}]", FormatJSON},
		{"export", "a,b\n1,2", FormatCSV},
		{"export", "a\tb\n1\t2", FormatTSV},
		{"export", "PK\x03\x04rest", FormatXLSX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(rawRecord(tt.name, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormat_Unsupported(t *testing.T) {
	_, err := DetectFormat(rawRecord("legacy.xls", "xx"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, err = DetectFormat(rawRecord("blob", "just some words"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestNormalize_CSV(t *testing.T) {
	csv := "name,age,joined,score,active\n" +
		"Alice,30,27/01/2025,\"1,200.5\",yes\n" +
		"Bob,N/A,03/02/2025,99,no\n" +
		"Carol,41,15/03/2025,£12,yes\n"

	n := New(WithLocale("en-GB"))
	records, err := n.Normalize(rawRecord("people.csv", csv))
	require.NoError(t, err)
	require.Len(t, records, 3)

	alice := records[0]
	assert.Equal(t, core.SourceKindTabular, alice.Kind)
	assert.Equal(t, 1, alice.Row)
	assert.Equal(t, core.RecordID("ons", "people.csv", "", 1), alice.ID)
	assert.Equal(t, "en-GB", alice.Locale)

	age := fieldValue(t, alice, "age")
	assert.Equal(t, core.FieldTypeInteger, age.Type)
	assert.Equal(t, "30", age.Value)

	score := fieldValue(t, alice, "score")
	assert.Equal(t, core.FieldTypeFloat, score.Type)
	assert.Equal(t, "1200.5", score.Value)

	joined := fieldValue(t, alice, "joined")
	assert.Equal(t, core.FieldTypeDate, joined.Type)
	assert.Equal(t, "27/01/2025", joined.Value)

	active := fieldValue(t, alice, "active")
	assert.Equal(t, core.FieldTypeBoolean, active.Type)
	assert.Equal(t, "true", active.Value)

	assert.True(t, fieldValue(t, records[1], "age").Null)
	assert.Equal(t, "12", fieldValue(t, records[2], "score").Value)

	assert.True(t, alice.HasBody)
	assert.Equal(t, alice.RenderFields(), alice.Body)
}

func TestNormalize_CoercionFailureIsPerCell(t *testing.T) {
	var csv = "id,amount\n"
	for i := 0; i < 10; i++ {
		csv += "x,100\n"
	}
	csv += "x,lots\n"

	records, err := New().Normalize(rawRecord("amounts.csv", csv))
	require.NoError(t, err)
	require.Len(t, records, 11)

	last := records[10]
	amount := fieldValue(t, last, "amount")
	assert.True(t, amount.Null)
	assert.Equal(t, core.FieldTypeInteger, amount.Type)
	require.Len(t, last.Warnings, 1)
	assert.Equal(t, `row 11 column amount: cannot parse "lots" as integer`, last.Warnings[0])
	assert.Empty(t, records[0].Warnings)
}

func TestNormalize_CSVEncoding(t *testing.T) {
	bom := "\xEF\xBB\xBFcity,price\nLondon,5\n"
	records, err := New().Normalize(rawRecord("bom.csv", bom))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "London", fieldValue(t, records[0], "city").Value)

	// "Café" in Windows-1252
	latin := "name\nCaf\xe9\n"
	records, err = New().Normalize(rawRecord("latin.csv", latin))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Café", fieldValue(t, records[0], "name").Value)
}

func TestNormalize_ShortRowsAndHeaders(t *testing.T) {
	csv := "a,,a\n1\n\n2,3,4\n"
	records, err := New().Normalize(rawRecord("short.csv", csv))
	require.NoError(t, err)
	require.Len(t, records, 2)

	names := []string{}
	for _, f := range records[0].Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "column_2", "a_2"}, names)
	assert.True(t, fieldValue(t, records[0], "a_2").Null)
	assert.Equal(t, "4", fieldValue(t, records[1], "a_2").Value)
}

func TestNormalize_TSV(t *testing.T) {
	records, err := New().Normalize(rawRecord("data.tsv", "k\tv\nx\t1.5\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1.5", fieldValue(t, records[0], "v").Value)
}

func TestNormalize_EmptyCSV(t *testing.T) {
	records, err := New().Normalize(rawRecord("empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = New().Normalize(rawRecord("header.csv", "a,b\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNormalize_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "region"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "count"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "North"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 12))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "South"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", 7))

	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "note"))
	require.NoError(t, f.SetCellValue("Notes", "A2", "provisional"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	raw := rawRecord("book.xlsx", "")
	raw.Payload = buf.Bytes()

	tables, err := New().Tables(raw)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Sheet1", tables[0].Sheet)
	assert.Equal(t, "Notes", tables[1].Sheet)
	assert.Equal(t, core.FieldTypeInteger, tables[0].Columns[1].Type)

	records, err := New().Normalize(raw)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Sheet1", records[0].Sheet)
	assert.Equal(t, "Notes", records[2].Sheet)
	assert.Equal(t, 1, records[2].Row)
	assert.NotEqual(t, records[0].ID, records[2].ID)
}

func TestNormalize_CorruptXLSX(t *testing.T) {
	_, err := New().Normalize(rawRecord("broken.xlsx", "PK\x03\x04 not a zip"))
	assert.ErrorIs(t, err, core.ErrCorruptInput)
}
