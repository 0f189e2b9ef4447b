// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package clean

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/dates"
)

// Cleaner applies dedupe, missing-value, date and PII steps to records.
type Cleaner struct {
	policies      map[string]MissingPolicy
	defaultPolicy MissingPolicy
	locale        string
	redactor      *Redactor
	audit         *Audit
	logger        *slog.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner) error

// WithMissingValues sets per-field missing-value policies, each given as
// "drop", "flag" or "default:<value>". Named fields are also added when a
// tabular record lacks them.
func WithMissingValues(policies map[string]string) Option {
	return func(c *Cleaner) error {
		for field, spec := range policies {
			p, err := ParsePolicy(spec)
			if err != nil {
				return err
			}
			c.policies[field] = p
		}
		return nil
	}
}

// WithDefaultPolicy sets the policy for null fields without their own.
// Default is flag.
func WithDefaultPolicy(spec string) Option {
	return func(c *Cleaner) error {
		p, err := ParsePolicy(spec)
		if err != nil {
			return err
		}
		c.defaultPolicy = p
		return nil
	}
}

// WithLocale sets the locale used for records that carry none.
func WithLocale(locale string) Option {
	return func(c *Cleaner) error {
		c.locale = locale
		return nil
	}
}

// WithPIIPatterns adds detection patterns per category ("email", "phone").
func WithPIIPatterns(extra map[string][]string) Option {
	return func(c *Cleaner) error {
		r, err := NewRedactor(extra)
		if err != nil {
			return err
		}
		c.redactor = r
		return nil
	}
}

// WithAudit shares an Audit between cleaners.
func WithAudit(a *Audit) Option {
	return func(c *Cleaner) error {
		if a != nil {
			c.audit = a
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cleaner) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Cleaner.
func New(opts ...Option) (*Cleaner, error) {
	redactor, err := NewRedactor(nil)
	if err != nil {
		return nil, err
	}
	c := &Cleaner{
		policies:      make(map[string]MissingPolicy),
		defaultPolicy: MissingPolicy{Action: MissingFlag},
		redactor:      redactor,
		audit:         NewAudit(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("stage", "clean")
	return c, nil
}

// Audit returns the run's counters.
func (c *Cleaner) Audit() *Audit {
	return c.audit
}

// Duplicate is a record dropped by Dedupe.
type Duplicate struct {
	Record *core.NormalizedRecord
	Of     core.ID
}

// DedupeResult is the outcome of Dedupe.
type DedupeResult struct {
	Kept    []*core.NormalizedRecord
	Dropped []Duplicate
	// Displaced are previously kept records that a record of this batch
	// predates. Callers remove them from storage.
	Displaced []core.ID
}

// SortForDedupe orders records by retrieval time, then source, position,
// sheet and row, so the earliest record claims a fingerprint first.
func SortForDedupe(records []*core.NormalizedRecord) {
	slices.SortStableFunc(records, func(a, b *core.NormalizedRecord) int {
		return ClaimantOf(a).compare(ClaimantOf(b))
	})
}

func fingerprintBody(rec *core.NormalizedRecord) string {
	if rec.HasBody {
		return rec.Body
	}
	return rec.RenderFields()
}

// Dedupe drops exact and near duplicates against set, keeping the earliest
// record by retrieval time. Records are processed in SortForDedupe order.
func (c *Cleaner) Dedupe(records []*core.NormalizedRecord, set *FingerprintSet) DedupeResult {
	ordered := slices.Clone(records)
	SortForDedupe(ordered)

	var res DedupeResult
	for _, rec := range ordered {
		body := fingerprintBody(rec)
		rec.Fingerprint = NearFingerprint(body)
		claim := set.Claim(ClaimantOf(rec), Fingerprints(body)...)
		if !claim.Keep {
			c.audit.duplicatesDropped.Add(1)
			c.logger.Debug("dropped duplicate", "source", rec.Origin.Source, "name", rec.Origin.Name,
				"row", rec.Row, "duplicate_of", claim.DuplicateOf)
			res.Dropped = append(res.Dropped, Duplicate{Record: rec, Of: claim.DuplicateOf})
			continue
		}
		if len(claim.Displaced) > 0 {
			c.audit.duplicatesDropped.Add(int64(len(claim.Displaced)))
			res.Displaced = append(res.Displaced, claim.Displaced...)
		}
		res.Kept = append(res.Kept, rec)
	}
	return res
}

// Clean applies the missing-value, date and PII steps to rec in place.
func (c *Cleaner) Clean(rec *core.NormalizedRecord) {
	c.handleMissing(rec)
	c.normalizeDates(rec)
	c.redact(rec)
	if rec.Kind == core.SourceKindTabular {
		rec.SetBody(rec.RenderFields())
	}
}

func (c *Cleaner) policyFor(field string) MissingPolicy {
	if p, ok := c.policies[field]; ok {
		return p
	}
	return c.defaultPolicy
}

func (c *Cleaner) handleMissing(rec *core.NormalizedRecord) {
	if rec.Kind == core.SourceKindTabular {
		for _, name := range slices.Sorted(maps.Keys(c.policies)) {
			if _, ok := rec.Field(name); !ok {
				rec.Fields = append(rec.Fields, core.Field{Name: name, Null: true})
			}
		}
	}

	fields := rec.Fields[:0]
	for _, f := range rec.Fields {
		if !f.Null {
			fields = append(fields, f)
			continue
		}
		p := c.policyFor(f.Name)
		switch p.Action {
		case MissingDrop:
			c.audit.fieldsDropped.Add(1)
			continue
		case MissingDefault:
			f.Value = p.Default
			f.Null = false
			c.audit.fieldsDefaulted.Add(1)
		default:
			f.Missing = true
			rec.SetFlag(core.FlagMissingPrefix+f.Name, true)
			c.audit.fieldsFlagged.Add(1)
		}
		fields = append(fields, f)
	}
	rec.Fields = fields
}

func (c *Cleaner) orderFor(rec *core.NormalizedRecord) dates.Order {
	if rec.Locale != "" {
		return dates.OrderForLocale(rec.Locale)
	}
	return dates.OrderForLocale(c.locale)
}

func (c *Cleaner) normalizeDates(rec *core.NormalizedRecord) {
	order := c.orderFor(rec)

	for i := range rec.Fields {
		f := &rec.Fields[i]
		if f.Type != core.FieldTypeDate || f.Null {
			continue
		}
		iso, err := dates.Normalize(f.Value, order)
		switch {
		case err == nil:
			if iso != f.Value {
				f.Value = iso
				c.audit.datesNormalized.Add(1)
			}
		case errors.Is(err, dates.ErrAmbiguous):
			rec.SetFlag(core.FlagUnresolvedDate, true)
			rec.Warn("field %s: ambiguous date %q", f.Name, f.Value)
			c.audit.datesUnresolved.Add(1)
		}
	}

	if rec.Kind == core.SourceKindTabular || !rec.HasBody {
		return
	}
	res := dates.RewriteText(rec.Body, order)
	if res.Normalized > 0 {
		rec.Body = res.Text
		c.audit.datesNormalized.Add(int64(res.Normalized))
	}
	if len(res.Unresolved) > 0 {
		rec.SetFlag(core.FlagUnresolvedDate, true)
		c.audit.datesUnresolved.Add(int64(len(res.Unresolved)))
		for _, d := range res.Unresolved {
			rec.Warn("ambiguous date %q", d)
		}
	}
}

func (c *Cleaner) redact(rec *core.NormalizedRecord) {
	var total RedactionCounts

	for i := range rec.Fields {
		f := &rec.Fields[i]
		if f.Null || f.Type != core.FieldTypeString {
			continue
		}
		var counts RedactionCounts
		f.Value, counts = c.redactor.Redact(f.Value)
		total.Emails += counts.Emails
		total.Phones += counts.Phones
	}

	if rec.Kind != core.SourceKindTabular && rec.HasBody {
		var counts RedactionCounts
		rec.Body, counts = c.redactor.Redact(rec.Body)
		total.Emails += counts.Emails
		total.Phones += counts.Phones
	}

	if total.Total() > 0 {
		c.audit.emailsRedacted.Add(int64(total.Emails))
		c.audit.phonesRedacted.Add(int64(total.Phones))
		rec.SetFlag(core.FlagPIIRedacted, true)
	}
}
