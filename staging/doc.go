// Package staging reads raw files from the staging directory.
//
// The layout is one sub-directory per source:
//
//	<staging_dir>/<source>/<file>
//	<staging_dir>/<source>/<file>.meta.json   (optional sidecar)
//
// Files are ordered by name; a file's position in that order is its
// Position, which the pipeline checkpoints to resume interrupted runs.
// Records are read lazily, one file at a time.
package staging
