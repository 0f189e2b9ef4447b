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


package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/refinery/core"
)

// Reader reads staged files under a root directory.
type Reader struct {
	root   string
	logger *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader creates a Reader over root.
func NewReader(root string, opts ...Option) *Reader {
	r := &Reader{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "staging")
	return r
}

// Root returns the staging directory.
func (r *Reader) Root() string {
	return r.root
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Sources lists the source directories in name order.
func (r *Reader) Sources() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging directory %s: %w", r.root, err)
	}
	var sources []string
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			sources = append(sources, e.Name())
		}
	}
	return sources, nil
}

// File is one staged file of a source.
type File struct {
	Source   string
	Name     string
	Position int
}

// Files lists the staged files of source in position order. Sidecars,
// hidden files and sub-directories are skipped.
func (r *Reader) Files(source string) ([]File, error) {
	dir := filepath.Join(r.root, source)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, fmt.Errorf("failed to read source %s: %w", source, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || hidden(name) || strings.HasSuffix(name, SidecarSuffix) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)

	files := make([]File, len(names))
	for i, name := range names {
		files[i] = File{Source: source, Name: name, Position: i}
	}
	return files, nil
}

// Read loads one staged file with its sidecar metadata. Without a sidecar
// the retrieval time is the file's modification time and the dataset is
// the source name.
func (r *Reader) Read(f File) (*core.RawRecord, error) {
	path := filepath.Join(r.root, f.Source, f.Name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rec := &core.RawRecord{
		Source:      f.Source,
		Dataset:     f.Source,
		Name:        f.Name,
		Position:    f.Position,
		RetrievedAt: info.ModTime().UTC(),
		Payload:     payload,
		Meta:        map[string]string{},
	}

	data, err := os.ReadFile(path + SidecarSuffix)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return rec, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read sidecar of %s: %w", path, err)
	}

	sidecar, err := ParseSidecar(data)
	if err != nil {
		// A broken sidecar does not block the file
		r.logger.Warn("ignoring metadata sidecar", "source", f.Source, "name", f.Name, "error", err)
		return rec, nil
	}
	if sidecar.Dataset != "" {
		rec.Dataset = sidecar.Dataset
	}
	if t, ok := sidecar.Retrieved(); ok {
		rec.RetrievedAt = t
	}
	rec.Locale = sidecar.Locale
	rec.Meta = sidecar.Meta()
	return rec, nil
}

// Records yields the files of source from position from onwards. Iteration
// reads one file per step, so it can be abandoned at any point and
// restarted from a checkpointed position. A read failure is yielded as a
// *ReadError with a nil record and iteration continues.
func (r *Reader) Records(ctx context.Context, source string, from int) iter.Seq2[*core.RawRecord, error] {
	return func(yield func(*core.RawRecord, error) bool) {
		files, err := r.Files(source)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, f := range files {
			if f.Position < from {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			rec, err := r.Read(f)
			if err != nil {
				if !yield(nil, &ReadError{File: f, Err: err}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
