package clean

import "sync/atomic"

// Audit counts what the Cleaner removed or rewrote during a run.
// It is safe for concurrent use.
type Audit struct {
	duplicatesDropped atomic.Int64
	fieldsDropped     atomic.Int64
	fieldsDefaulted   atomic.Int64
	fieldsFlagged     atomic.Int64
	datesNormalized   atomic.Int64
	datesUnresolved   atomic.Int64
	emailsRedacted    atomic.Int64
	phonesRedacted    atomic.Int64
}

// NewAudit creates a zeroed Audit.
func NewAudit() *Audit {
	return &Audit{}
}

// AuditCounts is a point-in-time copy of an Audit.
type AuditCounts struct {
	DuplicatesDropped int64
	FieldsDropped     int64
	FieldsDefaulted   int64
	FieldsFlagged     int64
	DatesNormalized   int64
	DatesUnresolved   int64
	EmailsRedacted    int64
	PhonesRedacted    int64
}

// Snapshot returns the current counts.
func (a *Audit) Snapshot() AuditCounts {
	return AuditCounts{
		DuplicatesDropped: a.duplicatesDropped.Load(),
		FieldsDropped:     a.fieldsDropped.Load(),
		FieldsDefaulted:   a.fieldsDefaulted.Load(),
		FieldsFlagged:     a.fieldsFlagged.Load(),
		DatesNormalized:   a.datesNormalized.Load(),
		DatesUnresolved:   a.datesUnresolved.Load(),
		EmailsRedacted:    a.emailsRedacted.Load(),
		PhonesRedacted:    a.phonesRedacted.Load(),
	}
}

// Map returns the counts keyed by their report names.
func (c AuditCounts) Map() map[string]int64 {
	return map[string]int64{
		"duplicates_dropped": c.DuplicatesDropped,
		"fields_dropped":     c.FieldsDropped,
		"fields_defaulted":   c.FieldsDefaulted,
		"fields_flagged":     c.FieldsFlagged,
		"dates_normalized":   c.DatesNormalized,
		"dates_unresolved":   c.DatesUnresolved,
		"emails_redacted":    c.EmailsRedacted,
		"phones_redacted":    c.PhonesRedacted,
	}
}

// Redactions returns the total number of PII replacements.
func (c AuditCounts) Redactions() int64 {
	return c.EmailsRedacted + c.PhonesRedacted
}
