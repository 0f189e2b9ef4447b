// Package index maintains the vector index together with the mapping from
// index position to chunk identifier, as one consistent unit.
//
// Search is exact: every live vector is compared with the query under
// squared Euclidean distance, nearest first, ties broken by insertion order.
//
// # Concurrency
//
// Add, Remove and Compact are serialized by a writer lock. Each successful
// write publishes an immutable snapshot; Search reads the latest snapshot and
// never observes a write in progress.
//
// # Removal
//
// Remove tombstones the position. Positions of other entries stay valid until
// the tombstone count reaches the compaction threshold, at which point the
// index is rebuilt once and positions are renumbered.
//
// # Persistence
//
// Persist writes vectors and mapping into a single checksummed file through a
// temporary file and an atomic rename, so a crash leaves either the old or
// the new file. Files are named after the embedding model, and Load refuses a
// file built for another model.
package index
