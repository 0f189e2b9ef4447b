// Package reindex rebuilds a vector index for a new embedding model from
// the chunks held in the record store, and verifies an index against them.
//
// Chunks are re-embedded in batches with progress reporting. Chunk ids are
// a pure function of the parent record and the ordinal, so a rebuilt index
// maps to the same stored chunks as the one it replaces.
package reindex
