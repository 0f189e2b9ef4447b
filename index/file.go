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


package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/storage"
)

const (
	fileMagic    = "RFIX"
	fileVersion  = 1
	checksumSize = 32
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the index file name for model. Different models always
// map to different files.
func FileName(model string) string {
	safe := unsafeFileChars.ReplaceAllString(model, "_")
	if safe != model {
		// Keep distinct models distinct after sanitizing.
		safe += "-" + core.IDFromContent(model).String()[:8]
	}
	return "index-" + safe + ".rfix"
}

// Persist writes the index and its identifier mapping to path atomically.
// The index is compacted first so the file holds no tombstones.
func (m *Manager) Persist(path string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dead > 0 {
		m.compactLocked()
		m.publish()
	}
	data := m.encodeLocked()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err = w.Write(data); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	if err = syncDir(dir); err != nil {
		return err
	}
	m.logger.Info("persisted index", "path", path, "chunks", len(m.slots))
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (m *Manager) encodeLocked() []byte {
	walk := func(e *storage.Encoder) {
		e.Int(fileVersion)
		e.String(m.model)
		e.Int(m.dim)
		e.Int(len(m.slots))
		e.Uint64(m.nextSeq)
		for _, ent := range m.slots {
			e.Uint64(ent.seq)
			e.Uint64(uint64(ent.id))
			for _, v := range ent.vector {
				e.Float32(v)
			}
		}
	}
	sizer := storage.NewSizer()
	walk(sizer)

	buf := make([]byte, len(fileMagic)+sizer.Len()+checksumSize)
	copy(buf, fileMagic)
	enc := storage.NewEncoder(buf[len(fileMagic) : len(buf)-checksumSize])
	walk(enc)
	copy(buf[len(buf)-checksumSize:], checksum(buf[:len(buf)-checksumSize]))
	return buf
}

func checksum(data []byte) []byte {
	h, _ := blake2b.New(checksumSize, nil)
	h.Write(data)
	return h.Sum(nil)
}

// Load reads an index persisted for model. It fails with core.ErrModelMismatch
// when the file was built for another model and with core.ErrIndexCorrupt
// when vectors and mapping disagree or the checksum does not match.
func Load(path, model string, opts ...Option) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < len(fileMagic)+checksumSize || string(data[:len(fileMagic)]) != fileMagic {
		return nil, fmt.Errorf("%w: %s is not an index file", core.ErrIndexCorrupt, path)
	}
	body, sum := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, fmt.Errorf("%w: checksum mismatch in %s", core.ErrIndexCorrupt, path)
	}

	d := storage.NewDecoder(body[len(fileMagic):])
	version := d.Int()
	fileModel := d.String()
	dim := d.Int()
	count := d.Int()
	nextSeq := d.Uint64()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: header: %w", core.ErrIndexCorrupt, err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", core.ErrIndexCorrupt, version)
	}
	if fileModel != model {
		return nil, fmt.Errorf("%w: %s was built with %q, not %q", core.ErrModelMismatch, path, fileModel, model)
	}

	m, err := New(model, dim, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexCorrupt, err)
	}
	if count < 0 || count > d.Remaining() {
		return nil, fmt.Errorf("%w: mapping declares %d entries", core.ErrIndexCorrupt, count)
	}

	m.slots = make([]*entry, 0, count)
	for range count {
		ent := &entry{seq: d.Uint64(), id: core.ChunkID(d.Uint64()), vector: make([]float32, dim)}
		for j := range ent.vector {
			ent.vector[j] = d.Float32()
		}
		if d.Err() != nil {
			break
		}
		if _, dup := m.positions[ent.id]; dup {
			return nil, fmt.Errorf("%w: chunk %s mapped twice", core.ErrIndexCorrupt, ent.id)
		}
		if ent.seq >= nextSeq {
			return nil, fmt.Errorf("%w: sequence %d beyond %d", core.ErrIndexCorrupt, ent.seq, nextSeq)
		}
		m.positions[ent.id] = len(m.slots)
		m.slots = append(m.slots, ent)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %d of %d vectors: %w", core.ErrIndexCorrupt, len(m.slots), count, err)
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d vectors", core.ErrIndexCorrupt, d.Remaining(), count)
	}
	m.nextSeq = nextSeq
	m.publish()
	m.logger.Info("loaded index", "path", path, "chunks", len(m.slots))
	return m, nil
}

// Open loads the index for model from dir, or creates an empty one when no
// file exists yet.
func Open(dir, model string, dim int, opts ...Option) (*Manager, error) {
	path := filepath.Join(dir, FileName(model))
	m, err := Load(path, model, opts...)
	if errors.Is(err, os.ErrNotExist) {
		return New(model, dim, opts...)
	}
	if err != nil {
		return nil, err
	}
	if dim > 0 && m.dim != dim {
		return nil, fmt.Errorf("%w: %s holds %d-dimensional vectors, model produces %d",
			core.ErrDimensionMismatch, path, m.dim, dim)
	}
	return m, nil
}
