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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/refinery/core"
)

// Encoder writes values with the MUS format. A nil buffer makes every call
// only accumulate the encoded size, so the same walk can size and fill a
// buffer.
type Encoder struct {
	bs []byte
	n  int
}

// NewSizer returns an Encoder that only measures.
func NewSizer() *Encoder { return &Encoder{} }

// NewEncoder returns an Encoder that writes into bs.
func NewEncoder(bs []byte) *Encoder { return &Encoder{bs: bs} }

// Len returns the number of bytes written or measured so far.
func (e *Encoder) Len() int { return e.n }

// Bytes returns the written bytes.
func (e *Encoder) Bytes() []byte { return e.bs[:e.n] }

func (e *Encoder) String(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Int(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Float32(v float32) {
	if e.bs == nil {
		e.n += raw.Float32.Size(v)
		return
	}
	e.n += raw.Float32.Marshal(v, e.bs[e.n:])
}

func (e *Encoder) Float64(v float64) {
	if e.bs == nil {
		e.n += raw.Float64.Size(v)
		return
	}
	e.n += raw.Float64.Marshal(v, e.bs[e.n:])
}

// Time encodes t with microsecond precision. The zero time round-trips.
func (e *Encoder) Time(t time.Time) {
	e.Bool(t.IsZero())
	if !t.IsZero() {
		e.Int64(t.UnixMicro())
	}
}

func (e *Encoder) Strings(vs []string) {
	e.Int(len(vs))
	for _, v := range vs {
		e.String(v)
	}
}

func (e *Encoder) Float32s(vs []float32) {
	e.Int(len(vs))
	for _, v := range vs {
		e.Float32(v)
	}
}

// Decoder reads values written by Encoder. The first failure sticks; later
// reads return zero values and Err reports it.
type Decoder struct {
	bs  []byte
	n   int
	err error
}

// NewDecoder returns a Decoder over bs.
func NewDecoder(bs []byte) *Decoder { return &Decoder{bs: bs} }

// Err returns the first decoding failure.
func (d *Decoder) Err() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

// Offset returns the number of bytes consumed.
func (d *Decoder) Offset() int { return d.n }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.bs) - d.n }

func (d *Decoder) String() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Float64() float64 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *Decoder) Time() time.Time {
	if d.Bool() {
		return time.Time{}
	}
	us := d.Int64()
	if d.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// length reads a slice length and rejects values the remaining input
// cannot possibly hold.
func (d *Decoder) length() int {
	l := d.Int()
	if d.err == nil && (l < 0 || l > d.Remaining()) {
		d.err = fmt.Errorf("%w: length %d exceeds %d remaining bytes", ErrTruncatedData, l, d.Remaining())
		return 0
	}
	return l
}

func (d *Decoder) Strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	vs := make([]string, l)
	for i := range vs {
		vs[i] = d.String()
	}
	return vs
}

func (d *Decoder) Float32s() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	vs := make([]float32, l)
	for i := range vs {
		vs[i] = d.Float32()
	}
	return vs
}

// encode runs walk twice: once to size the buffer and once to fill it.
func encode(walk func(e *Encoder)) []byte {
	sizer := NewSizer()
	walk(sizer)
	e := NewEncoder(make([]byte, sizer.Len()))
	walk(e)
	return e.Bytes()
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return encode(func(e *Encoder) { e.Uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := NewDecoder(data)
	id := core.ID(d.Uint64())
	return id, d.Err()
}

// MarshalRecord serializes an EnrichedRecord to bytes.
func MarshalRecord(record *core.EnrichedRecord) []byte {
	return encode(func(e *Encoder) { encodeRecord(e, record) })
}

func encodeRecord(e *Encoder, r *core.EnrichedRecord) {
	e.Uint64(uint64(r.ID))
	e.String(r.Origin.Source)
	e.String(r.Origin.Dataset)
	e.String(r.Origin.Name)
	e.Int(r.Origin.Position)
	e.Int(int(r.Kind))
	e.String(r.Sheet)
	e.Int(r.Row)
	e.Int(len(r.Fields))
	for _, f := range r.Fields {
		e.String(f.Name)
		e.Int(int(f.Type))
		e.String(f.Value)
		e.Bool(f.Null)
		e.Bool(f.Missing)
	}
	e.String(r.Body)
	e.Bool(r.HasBody)
	e.String(r.Title)
	e.String(r.Description)
	e.Strings(r.Keywords)
	e.String(r.Locale)
	e.String(r.Fingerprint)
	e.Time(r.RetrievedAt)
	e.Time(r.ProcessedAt)
	e.Strings(r.Warnings)
	e.Int(len(r.Flags))
	for _, name := range sortedKeys(r.Flags) {
		e.String(name)
		e.Bool(r.Flags[name])
	}
	e.String(r.Language)
	e.Float64(r.LanguageConfidence)
	e.Strings(r.Topics)
	e.Int(r.WordCount)
	e.Int(r.TokenCount)
}

// UnmarshalRecord deserializes an EnrichedRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EnrichedRecord, error) {
	d := NewDecoder(data)
	r := &core.EnrichedRecord{}
	r.ID = core.ID(d.Uint64())
	r.Origin.Source = d.String()
	r.Origin.Dataset = d.String()
	r.Origin.Name = d.String()
	r.Origin.Position = d.Int()
	r.Kind = core.SourceKind(d.Int())
	r.Sheet = d.String()
	r.Row = d.Int()
	if n := d.length(); n > 0 {
		r.Fields = make([]core.Field, n)
		for i := range r.Fields {
			r.Fields[i] = core.Field{
				Name:    d.String(),
				Type:    core.FieldType(d.Int()),
				Value:   d.String(),
				Null:    d.Bool(),
				Missing: d.Bool(),
			}
		}
	}
	r.Body = d.String()
	r.HasBody = d.Bool()
	r.Title = d.String()
	r.Description = d.String()
	r.Keywords = d.Strings()
	r.Locale = d.String()
	r.Fingerprint = d.String()
	r.RetrievedAt = d.Time()
	r.ProcessedAt = d.Time()
	r.Warnings = d.Strings()
	if n := d.length(); n > 0 {
		r.Flags = make(map[string]bool, n)
		for range n {
			name := d.String()
			r.Flags[name] = d.Bool()
		}
	}
	r.Language = d.String()
	r.LanguageConfidence = d.Float64()
	r.Topics = d.Strings()
	r.WordCount = d.Int()
	r.TokenCount = d.Int()
	if err := d.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	return encode(func(e *Encoder) {
		e.Uint64(uint64(chunk.ID))
		e.Uint64(uint64(chunk.ParentID))
		e.Int(chunk.Ordinal)
		e.Int(chunk.Start)
		e.Int(chunk.End)
		e.String(chunk.Text)
	})
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	d := NewDecoder(data)
	chunk := &core.Chunk{
		ID:       core.ChunkID(d.Uint64()),
		ParentID: core.ID(d.Uint64()),
		Ordinal:  d.Int(),
		Start:    d.Int(),
		End:      d.Int(),
		Text:     d.String(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return encode(func(e *Encoder) {
		e.String(checkpoint.Source)
		e.Int(checkpoint.Position)
		e.Int(checkpoint.Completed)
		e.Time(checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	d := NewDecoder(data)
	checkpoint := &core.Checkpoint{
		Source:    d.String(),
		Position:  d.Int(),
		Completed: d.Int(),
		UpdatedAt: d.Time(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return checkpoint, nil
}
