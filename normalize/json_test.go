package normalize

import (
	"testing"

	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizeJSON(t *testing.T, name, payload string) []*core.NormalizedRecord {
	t.Helper()
	records, err := New().Normalize(rawRecord(name, payload))
	require.NoError(t, err)
	return records
}

func TestJSON_ArrayOfObjects(t *testing.T) {
	records := normalizeJSON(t, "a.json", `[{"b":1,"a":"x"},{"a":"y","c":true}]`)
	require.Len(t, records, 2)

	var names []string
	for _, f := range records[0].Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.True(t, fieldValue(t, records[0], "c").Null)
	assert.True(t, fieldValue(t, records[1], "b").Null)
}

func TestJSON_WrappedRows(t *testing.T) {
	for _, key := range []string{"data", "results", "rows", "items"} {
		t.Run(key, func(t *testing.T) {
			records := normalizeJSON(t, "w.json", `{"meta":{"count":2},"`+key+`":[{"id":1},{"id":2}]}`)
			require.Len(t, records, 2)
			assert.Equal(t, "2", fieldValue(t, records[1], "id").Value)
		})
	}
}

func TestJSON_ColumnOriented(t *testing.T) {
	records := normalizeJSON(t, "c.json", `{"year":[2023,2024],"value":[1.5,2.5]}`)
	require.Len(t, records, 2)
	assert.Equal(t, "2024", fieldValue(t, records[1], "year").Value)
	assert.Equal(t, "2.5", fieldValue(t, records[1], "value").Value)
}

func TestJSON_SingleObjectFlattened(t *testing.T) {
	records := normalizeJSON(t, "s.json", `{"name":"x","address":{"city":"Leeds","geo":{"lat":53.8}},"tags":["a","b"]}`)
	require.Len(t, records, 1)
	assert.Equal(t, "Leeds", fieldValue(t, records[0], "address.city").Value)
	assert.Equal(t, "53.8", fieldValue(t, records[0], "address.geo.lat").Value)
	assert.Equal(t, `["a","b"]`, fieldValue(t, records[0], "tags").Value)
}

func TestJSON_NestedObjectInArrayKeepsOrder(t *testing.T) {
	records := normalizeJSON(t, "n.json", `[{"list":[{"z":1,"a":2}]}]`)
	require.Len(t, records, 1)
	assert.Equal(t, `[{"z":1,"a":2}]`, fieldValue(t, records[0], "list").Value)
}

func TestJSON_ErrorPayload(t *testing.T) {
	records := normalizeJSON(t, "e.json", `{"error":"rate limited"}`)
	assert.Empty(t, records)
}

func TestJSON_Lines(t *testing.T) {
	records := normalizeJSON(t, "l.jsonl", "{\"a\":1}\n{\"a\":2}\n")
	require.Len(t, records, 2)
	assert.Equal(t, "2", fieldValue(t, records[1], "a").Value)
}

func TestJSON_Null(t *testing.T) {
	records := normalizeJSON(t, "n.json", `[{"a":null},{"a":"x"}]`)
	require.Len(t, records, 2)
	assert.True(t, fieldValue(t, records[0], "a").Null)
}

func TestJSON_Corrupt(t *testing.T) {
	for _, payload := range []string{`[{"a":1}`, `{"a":}`, `[1,`} {
		_, err := New().Normalize(rawRecord("bad.json", payload))
		assert.ErrorIs(t, err, core.ErrCorruptInput, payload)
	}
}
