// Package pipeline runs staged files through the refinement stages.
//
// Each source is read lazily from the staging directory in batches of
// files. A batch moves through the stages in sequence:
//
//	ingest   normalize tabular files or extract documents (one dispatch on core.SourceKind)
//	clean    dedupe against the source's fingerprint set, then missing values, dates and PII
//	enrich   language, topics, word and token counts
//	chunk    overlapping windows of each body
//	embed    batched embedding with timeout and retries
//	index    vector index, record store and checkpoint
//
// Within a stage records are processed concurrently on worker pools. A
// batch's output is persisted only after its embedding stage succeeds, and
// the checkpoint is written last, so an interrupted run resumes at the
// first file whose output is not fully persisted.
package pipeline
