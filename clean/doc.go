// Package clean deduplicates and sanitizes normalized records.
//
// A Cleaner applies four steps in order: duplicate detection against a
// batch-scoped FingerprintSet, missing-value policies, date normalization and
// PII redaction. Every drop and every redaction increments the Cleaner's
// Audit.
package clean
