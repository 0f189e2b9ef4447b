package clean

import (
	"cmp"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/refinery/core"
)

func digest(s string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// ExactFingerprint identifies bodies that are byte-for-byte equal.
func ExactFingerprint(body string) string {
	return "x:" + digest(body)
}

// NearFingerprint identifies bodies equal after collapsing whitespace and
// folding case.
func NearFingerprint(body string) string {
	return "n:" + digest(strings.ToLower(strings.Join(strings.Fields(body), " ")))
}

// Fingerprints returns the exact and near fingerprints of body.
func Fingerprints(body string) []string {
	return []string{ExactFingerprint(body), NearFingerprint(body)}
}

// Claimant identifies a record competing for a fingerprint. Earlier retrieval
// wins; ties fall back to source, position, sheet and row, the order
// SortForDedupe uses.
type Claimant struct {
	ID          core.ID
	RetrievedAt time.Time
	Source      string
	Position    int
	Sheet       string
	Row         int
}

// ClaimantOf returns the claimant for rec.
func ClaimantOf(rec *core.NormalizedRecord) Claimant {
	return Claimant{
		ID:          rec.ID,
		RetrievedAt: rec.RetrievedAt,
		Source:      rec.Origin.Source,
		Position:    rec.Origin.Position,
		Sheet:       rec.Sheet,
		Row:         rec.Row,
	}
}

func (c Claimant) compare(o Claimant) int {
	if n := c.RetrievedAt.Compare(o.RetrievedAt); n != 0 {
		return n
	}
	if n := strings.Compare(c.Source, o.Source); n != 0 {
		return n
	}
	if n := cmp.Compare(c.Position, o.Position); n != 0 {
		return n
	}
	if n := strings.Compare(c.Sheet, o.Sheet); n != 0 {
		return n
	}
	if n := cmp.Compare(c.Row, o.Row); n != 0 {
		return n
	}
	return cmp.Compare(c.ID, o.ID)
}

func (c Claimant) before(o Claimant) bool {
	return c.compare(o) < 0
}

// FingerprintSet maps fingerprints to the record that owns them. It is
// scoped to one batch or one source run and serializes claims.
type FingerprintSet struct {
	mu     sync.Mutex
	owners map[string]Claimant
}

// NewFingerprintSet creates an empty set.
func NewFingerprintSet() *FingerprintSet {
	return &FingerprintSet{owners: make(map[string]Claimant)}
}

// Len returns the number of fingerprints held.
func (s *FingerprintSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}

// ClaimResult is the outcome of a claim.
type ClaimResult struct {
	Keep bool
	// DuplicateOf is the owner that beat the claimant when Keep is false.
	DuplicateOf core.ID
	// Displaced lists previous owners that the claimant beat.
	Displaced []core.ID
}

// Claim tries to take every fingerprint in fps for c. If any is owned by an
// earlier record the claim fails and nothing changes. Otherwise c takes all
// of them, displacing later owners. Claims by the current owner succeed.
func (s *FingerprintSet) Claim(c Claimant, fps ...string) ClaimResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var displaced []core.ID
	for _, fp := range fps {
		owner, ok := s.owners[fp]
		if !ok || owner.ID == c.ID {
			continue
		}
		if owner.before(c) {
			return ClaimResult{DuplicateOf: owner.ID}
		}
		displaced = appendUnique(displaced, owner.ID)
	}

	if len(displaced) > 0 {
		for fp, owner := range s.owners {
			for _, id := range displaced {
				if owner.ID == id {
					delete(s.owners, fp)
				}
			}
		}
	}
	for _, fp := range fps {
		s.owners[fp] = c
	}
	return ClaimResult{Keep: true, Displaced: displaced}
}

func appendUnique(ids []core.ID, id core.ID) []core.ID {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
