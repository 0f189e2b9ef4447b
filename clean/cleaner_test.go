package clean

import (
	"testing"
	"time"

	"github.com/poiesic/refinery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC)

func document(name, body string, retrieved time.Time) *core.NormalizedRecord {
	raw := &core.RawRecord{Source: "gov", Name: name, RetrievedAt: retrieved}
	rec := core.NewNormalizedRecord(raw, core.SourceKindMarkup, "", 0)
	rec.SetBody(body)
	return rec
}

func row(n int, fields ...core.Field) *core.NormalizedRecord {
	raw := &core.RawRecord{Source: "ons", Name: "t.csv", RetrievedAt: t0, Locale: "en-GB"}
	rec := core.NewNormalizedRecord(raw, core.SourceKindTabular, "", n)
	rec.Fields = fields
	rec.SetBody(rec.RenderFields())
	return rec
}

func newCleaner(t *testing.T, opts ...Option) *Cleaner {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidPolicy(t *testing.T) {
	_, err := New(WithMissingValues(map[string]string{"x": "zap"}))
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = New(WithDefaultPolicy("nope"))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("default:unknown")
	require.NoError(t, err)
	assert.Equal(t, MissingDefault, p.Action)
	assert.Equal(t, "unknown", p.Default)
	assert.Equal(t, "default:unknown", p.String())

	p, err = ParsePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, "drop", p.String())
}

func TestDedupe_KeepsEarliest(t *testing.T) {
	c := newCleaner(t)
	later := document("b.html", "The same   text", t0.Add(time.Hour))
	earlier := document("a.html", "the same text", t0)

	res := c.Dedupe([]*core.NormalizedRecord{later, earlier}, NewFingerprintSet())
	require.Len(t, res.Kept, 1)
	assert.Equal(t, earlier.ID, res.Kept[0].ID)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, later.ID, res.Dropped[0].Record.ID)
	assert.Equal(t, earlier.ID, res.Dropped[0].Of)
	assert.Equal(t, int64(1), c.Audit().Snapshot().DuplicatesDropped)
	assert.NotEmpty(t, earlier.Fingerprint)
}

func TestDedupe_DistinctRecordsKept(t *testing.T) {
	c := newCleaner(t)
	res := c.Dedupe([]*core.NormalizedRecord{
		document("a.html", "alpha", t0),
		document("b.html", "beta", t0),
	}, NewFingerprintSet())
	assert.Len(t, res.Kept, 2)
	assert.Empty(t, res.Dropped)
}

func TestDedupe_DisplacesStoredLaterRecord(t *testing.T) {
	c := newCleaner(t)
	set := NewFingerprintSet()
	set.Claim(Claimant{ID: 99, RetrievedAt: t0.Add(24 * time.Hour)}, Fingerprints("shared body")...)

	res := c.Dedupe([]*core.NormalizedRecord{document("a.html", "shared body", t0)}, set)
	assert.Len(t, res.Kept, 1)
	assert.Equal(t, []core.ID{99}, res.Displaced)
}

func TestClean_MissingPolicies(t *testing.T) {
	c := newCleaner(t, WithMissingValues(map[string]string{
		"notes":  "drop",
		"region": "default:unknown",
		"extra":  "flag",
	}))

	rec := row(1,
		core.Field{Name: "name", Value: "Alice"},
		core.Field{Name: "notes", Null: true},
		core.Field{Name: "region", Null: true},
		core.Field{Name: "age", Type: core.FieldTypeInteger, Null: true},
	)
	c.Clean(rec)

	_, ok := rec.Field("notes")
	assert.False(t, ok)

	region, ok := rec.Field("region")
	require.True(t, ok)
	assert.Equal(t, "unknown", region.Value)
	assert.False(t, region.Null)

	age, ok := rec.Field("age")
	require.True(t, ok)
	assert.True(t, age.Missing)
	assert.True(t, rec.HasFlag(core.FlagMissingPrefix+"age"))

	extra, ok := rec.Field("extra")
	require.True(t, ok)
	assert.True(t, extra.Missing)
	assert.True(t, rec.HasFlag("missing:extra"))

	counts := c.Audit().Snapshot()
	assert.Equal(t, int64(1), counts.FieldsDropped)
	assert.Equal(t, int64(1), counts.FieldsDefaulted)
	assert.Equal(t, int64(2), counts.FieldsFlagged)

	assert.Equal(t, "name: Alice\nregion: unknown", rec.Body)
}

func TestClean_DateFields(t *testing.T) {
	c := newCleaner(t)
	rec := row(1,
		core.Field{Name: "published", Type: core.FieldTypeDate, Value: "03/04/2025"},
		core.Field{Name: "updated", Type: core.FieldTypeDate, Value: "2025-04-05"},
	)
	c.Clean(rec)

	published, _ := rec.Field("published")
	assert.Equal(t, "2025-04-03", published.Value)
	updated, _ := rec.Field("updated")
	assert.Equal(t, "2025-04-05", updated.Value)
	assert.Equal(t, int64(1), c.Audit().Snapshot().DatesNormalized)
	assert.Contains(t, rec.Body, "published: 2025-04-03")
}

func TestClean_AmbiguousDateFlagged(t *testing.T) {
	c := newCleaner(t)
	rec := document("a.html", "Due 03/04/2025. Published 27 January 2025.", t0)
	c.Clean(rec)

	assert.Equal(t, "Due 03/04/2025. Published 2025-01-27.", rec.Body)
	assert.True(t, rec.HasFlag(core.FlagUnresolvedDate))
	counts := c.Audit().Snapshot()
	assert.Equal(t, int64(1), counts.DatesNormalized)
	assert.Equal(t, int64(1), counts.DatesUnresolved)
}

func TestClean_LocaleResolvesDates(t *testing.T) {
	c := newCleaner(t, WithLocale("en-US"))
	rec := document("a.html", "Due 03/04/2025.", t0)
	c.Clean(rec)
	assert.Equal(t, "Due 2025-03-04.", rec.Body)
	assert.False(t, rec.HasFlag(core.FlagUnresolvedDate))
}

func TestClean_PIIScenario(t *testing.T) {
	c := newCleaner(t)
	rec := document("a.html", "call 555-123-4567 or email a@b.com", t0)
	c.Clean(rec)

	assert.Equal(t, "call xx-xxxx-xxxx or email xxx@xxx.xx", rec.Body)
	assert.True(t, rec.HasFlag(core.FlagPIIRedacted))
	counts := c.Audit().Snapshot()
	assert.Equal(t, int64(2), counts.Redactions())
	assert.Equal(t, int64(1), counts.EmailsRedacted)
	assert.Equal(t, int64(1), counts.PhonesRedacted)
}

func TestClean_PIIInFields(t *testing.T) {
	c := newCleaner(t)
	rec := row(1,
		core.Field{Name: "contact", Value: "jo@example.org"},
		core.Field{Name: "count", Type: core.FieldTypeInteger, Value: "5551234567"},
	)
	c.Clean(rec)

	contact, _ := rec.Field("contact")
	assert.Equal(t, EmailPlaceholder, contact.Value)
	count, _ := rec.Field("count")
	assert.Equal(t, "5551234567", count.Value)
	assert.Equal(t, "contact: xxx@xxx.xx\ncount: 5551234567", rec.Body)
}

func TestAuditCounts_Map(t *testing.T) {
	a := NewAudit()
	a.emailsRedacted.Add(2)
	m := a.Snapshot().Map()
	assert.Equal(t, int64(2), m["emails_redacted"])
	assert.Len(t, m, 8)
}
