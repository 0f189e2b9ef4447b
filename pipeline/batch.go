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


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/refinery/clean"
	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/index"
	"github.com/poiesic/refinery/storage"
)

// parallel runs fn(i) for i in [0, n) on pool and waits for all of them.
// Work the pool refuses runs on the calling goroutine.
func parallel(pool *ants.Pool, n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			wg.Done()
			fn(i)
		}
	}
	wg.Wait()
}

// permanent reports whether err will recur on every attempt, so the file
// is done with no output.
func permanent(err error) bool {
	return errors.Is(err, core.ErrUnsupportedFormat) ||
		errors.Is(err, core.ErrCorruptInput) ||
		errors.Is(err, core.ErrExtractionFailed) ||
		errors.Is(err, core.ErrInvalidRecord)
}

func failureOf(stage Stage, rec *core.NormalizedRecord, err error) Failure {
	return Failure{
		Stage:    stage,
		Source:   rec.Origin.Source,
		Name:     rec.Origin.Name,
		Position: rec.Origin.Position,
		Row:      rec.Row,
		Err:      err,
	}
}

// ingest routes raw to the normalizer or the extractor by its kind.
func (p *Pipeline) ingest(ctx context.Context, raw *core.RawRecord, kind core.SourceKind) ([]*core.NormalizedRecord, error) {
	if err := core.ValidateRawRecord(raw); err != nil {
		return nil, err
	}
	switch kind {
	case core.SourceKindTabular:
		return p.normalizer.Normalize(raw)
	case core.SourceKindMarkup, core.SourceKindScannedDocument, core.SourceKindStructuredText:
		rec, err := p.extractor.Extract(ctx, raw, kind)
		if err != nil {
			return nil, err
		}
		return []*core.NormalizedRecord{rec}, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFormat, raw.Ref())
}

type ingested struct {
	records []*core.NormalizedRecord
	err     error
}

// unit is an enriched record with its chunks.
type unit struct {
	rec    *core.EnrichedRecord
	chunks []*core.Chunk
	ok     bool
}

// runBatch takes raws through every stage and persists the result. It
// returns the files whose output is fully persisted. An error is fatal for
// the run; nothing of the batch is persisted then.
func (p *Pipeline) runBatch(
	ctx context.Context,
	source string,
	raws []*core.RawRecord,
	cleaner *clean.Cleaner,
	set *clean.FingerprintSet,
	summary *Summary,
) ([]*core.RawRecord, error) {
	incomplete := make(map[string]bool)

	// Ingest
	start := time.Now()
	results := make([]ingested, len(raws))
	var wg sync.WaitGroup
	for i, raw := range raws {
		kind := Classify(raw)
		pool := p.ingestPool
		if kind == core.SourceKindScannedDocument {
			pool = p.ocrPool
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			records, err := p.ingest(ctx, raw, kind)
			results[i] = ingested{records: records, err: err}
		}
		if err := pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*core.NormalizedRecord
	for i, res := range results {
		raw := raws[i]
		if res.err != nil {
			p.logger.Warn("ingest failed", "source", source, "name", raw.Name, "position", raw.Position, "error", res.err)
			summary.fail(Failure{Stage: StageIngest, Source: source, Name: raw.Name, Position: raw.Position, Err: res.err})
			if !permanent(res.err) {
				incomplete[raw.Name] = true
			}
			continue
		}
		summary.add(StageIngest, 1, 0, 0)
		records = append(records, res.records...)
	}
	summary.observe(StageIngest, start)

	// Clean
	start = time.Now()
	deduped := cleaner.Dedupe(records, set)
	summary.add(StageClean, 0, len(deduped.Dropped), 0)
	kept := deduped.Kept
	parallel(p.ingestPool, len(kept), func(i int) {
		cleaner.Clean(kept[i])
	})
	summary.add(StageClean, len(kept), 0, 0)
	summary.observe(StageClean, start)

	// Enrich
	start = time.Now()
	units := make([]unit, len(kept))
	errs := make([]error, len(kept))
	parallel(p.ingestPool, len(kept), func(i int) {
		units[i].rec, errs[i] = p.enricher.Enrich(ctx, kept[i])
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			summary.fail(failureOf(StageEnrich, kept[i], err))
			incomplete[kept[i].Origin.Name] = true
			continue
		}
		units[i].ok = true
		summary.add(StageEnrich, 1, 0, 0)
	}
	summary.observe(StageEnrich, start)

	// Chunk
	var texts []string
	for i := range units {
		u := &units[i]
		if !u.ok {
			continue
		}
		u.chunks = p.chunker.Split(u.rec.ID, u.rec.Body)
		if len(u.chunks) == 0 {
			summary.add(StageChunk, 0, 1, 0)
			continue
		}
		summary.add(StageChunk, 1, 0, 0)
		for _, c := range u.chunks {
			texts = append(texts, c.Text)
		}
	}

	// Embed
	start = time.Now()
	embedded, err := p.batcher.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := embedded.Vectors
	offset := 0
	var items []index.Item
	for i := range units {
		u := &units[i]
		if !u.ok {
			continue
		}
		n := len(u.chunks)
		var failed error
		for j := range n {
			if e := embedded.Errors[offset+j]; e != nil {
				failed = e
			}
		}
		if failed != nil {
			summary.add(StageEmbed, 0, 0, n)
			summary.record(failureOf(StageEmbed, &u.rec.NormalizedRecord, failed))
			incomplete[u.rec.Origin.Name] = true
			u.ok = false
			offset += n
			continue
		}
		summary.add(StageEmbed, n, 0, 0)
		for j, c := range u.chunks {
			items = append(items, index.Item{ChunkID: c.ID, Vector: vectors[offset+j]})
		}
		offset += n
	}
	summary.observe(StageEmbed, start)

	// Index and store. The batch is committed from here on, so cancellation
	// no longer applies.
	start = time.Now()
	commitCtx := context.WithoutCancel(ctx)
	if err := p.commit(commitCtx, source, units, items, deduped.Displaced); err != nil {
		return nil, err
	}
	summary.add(StageIndex, len(items), 0, 0)
	summary.observe(StageIndex, start)

	var done []*core.RawRecord
	for _, raw := range raws {
		if !incomplete[raw.Name] {
			done = append(done, raw)
		}
	}
	p.logger.Debug("batch committed", "source", source, "files", len(raws), "done", len(done),
		"records", len(kept), "chunks", len(items))
	return done, nil
}

// commit writes the batch: displaced records are removed, records replace
// their previous chunks in the index and the store, and the index file is
// rewritten.
func (p *Pipeline) commit(ctx context.Context, source string, units []unit, items []index.Item, displaced []core.ID) error {
	for _, id := range displaced {
		if err := p.store.DeleteRecord(ctx, source, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to remove displaced record %s: %w", id, err)
		}
		p.index.RemoveParent(id)
	}

	var records []*core.EnrichedRecord
	for _, u := range units {
		if !u.ok {
			continue
		}
		p.index.RemoveParent(u.rec.ID)
		records = append(records, u.rec)
	}
	if err := p.index.AddBatch(items); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	if p.indexPath != "" {
		if err := p.index.Persist(p.indexPath); err != nil {
			return fmt.Errorf("failed to persist index: %w", err)
		}
	}

	if len(records) > 0 {
		if err := p.store.PutRecords(ctx, records...); err != nil {
			return fmt.Errorf("failed to store records: %w", err)
		}
	}
	for _, u := range units {
		if !u.ok {
			continue
		}
		if err := p.store.ReplaceChunks(ctx, u.rec.ID, u.chunks); err != nil {
			return fmt.Errorf("failed to store chunks of %s: %w", u.rec.ID, err)
		}
	}
	return nil
}
