package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/refinery/core"
)

// object is a JSON object that remembers its key order.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// nextToken reads a token inside a value, where running out of input means
// the value is truncated.
func nextToken(dec *json.Decoder) (json.Token, error) {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFrom(dec, tok)
}

func decodeNested(dec *json.Decoder) (any, error) {
	tok, err := nextToken(dec)
	if err != nil {
		return nil, err
	}
	return decodeFrom(dec, tok)
}

func decodeFrom(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{values: make(map[string]any)}
			for dec.More() {
				keyTok, err := nextToken(dec)
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeNested(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.values[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.values[key] = val
			}
			if _, err := nextToken(dec); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := decodeNested(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := nextToken(dec); err != nil {
				return nil, err
			}
			if arr == nil {
				arr = []any{}
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

// rowKeys are the wrapper keys whose array holds the records.
var rowKeys = []string{"data", "results", "rows", "items"}

func readJSON(payload []byte) ([]*grid, error) {
	dec := json.NewDecoder(strings.NewReader(decodeText(payload)))
	dec.UseNumber()

	var values []any
	for {
		v, err := decodeValue(dec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrCorruptInput, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var rows []*object
	if len(values) > 1 {
		// JSON lines
		for _, v := range values {
			rows = append(rows, asRow(v))
		}
	} else {
		rows = rowsOf(values[0])
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return []*grid{toGrid(rows)}, nil
}

func rowsOf(v any) []*object {
	switch t := v.(type) {
	case []any:
		rows := make([]*object, 0, len(t))
		for _, item := range t {
			rows = append(rows, asRow(item))
		}
		return rows
	case *object:
		for _, key := range rowKeys {
			if inner, ok := t.get(key); ok {
				if arr, ok := inner.([]any); ok {
					return rowsOf(arr)
				}
			}
		}
		if _, ok := t.get("error"); ok {
			return nil
		}
		if cols, ok := columnOriented(t); ok {
			return cols
		}
		return []*object{t}
	}
	return []*object{asRow(v)}
}

func asRow(v any) *object {
	if obj, ok := v.(*object); ok {
		return obj
	}
	return &object{keys: []string{"value"}, values: map[string]any{"value": v}}
}

// columnOriented transposes an object of equal-length arrays into rows.
func columnOriented(o *object) ([]*object, bool) {
	if len(o.keys) == 0 {
		return nil, false
	}
	n := -1
	for _, k := range o.keys {
		arr, ok := o.values[k].([]any)
		if !ok {
			return nil, false
		}
		if n >= 0 && len(arr) != n {
			return nil, false
		}
		n = len(arr)
	}
	if n <= 0 {
		return nil, false
	}
	rows := make([]*object, n)
	for i := range rows {
		row := &object{keys: o.keys, values: make(map[string]any, len(o.keys))}
		for _, k := range o.keys {
			row.values[k] = o.values[k].([]any)[i]
		}
		rows[i] = row
	}
	return rows, true
}

func toGrid(rows []*object) *grid {
	flat := make([]*object, len(rows))
	var header []string
	index := make(map[string]int)
	for i, row := range rows {
		f := &object{values: make(map[string]any)}
		flatten("", row, f)
		flat[i] = f
		for _, k := range f.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
		}
	}

	g := &grid{header: header, rows: make([][]*string, len(flat))}
	for i, f := range flat {
		line := make([]*string, len(header))
		for _, k := range f.keys {
			s, ok := scalarString(f.values[k])
			if ok {
				line[index[k]] = &s
			}
		}
		g.rows[i] = line
	}
	return g
}

// flatten copies o into out with nested object keys joined by dots.
func flatten(prefix string, o *object, out *object) {
	for _, k := range o.keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if inner, ok := o.values[k].(*object); ok {
			flatten(key, inner, out)
			continue
		}
		if _, dup := out.values[key]; !dup {
			out.keys = append(out.keys, key)
		}
		out.values[key] = o.values[k]
	}
}

// scalarString renders a leaf value. JSON null reports false.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
