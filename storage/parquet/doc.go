// Package parquet writes the columnar form of the corpus: one records table
// and one chunks table per source.
//
// Files are written to a temporary path and renamed into place, so readers
// never observe a partial table.
package parquet
