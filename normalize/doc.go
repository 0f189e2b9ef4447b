// Package normalize converts tabular payloads into normalized records.
//
// Delimited text, row-record JSON and XLSX workbooks are read into Tables:
// one per sheet, with a header row of field names and one row per record.
// Every column's type is inferred from its non-null cells and each cell is
// coerced into it. A cell that does not fit becomes null and its record
// carries a warning; only a container that cannot be parsed at all fails
// the file with core.ErrCorruptInput.
package normalize
