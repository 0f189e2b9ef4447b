// Package embedding turns chunk texts into vectors through an ai.Embedder.
//
// A Batcher splits its input into sub-batches, embeds them concurrently on a
// worker pool with a per-call timeout and exponential-backoff retries, and
// reassembles the vectors in input order. All vectors of a run share one
// dimension: the first successful response fixes it and any later vector of
// another length fails the run with core.ErrDimensionMismatch.
//
// A sub-batch that still fails after its retries does not fail the run. Its
// slots in the Result carry the error so the caller can report the affected
// records. Ping is used before a run to tell an unreachable model
// (core.ErrEmbeddingUnavailable) apart from per-record trouble.
package embedding
