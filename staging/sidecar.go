package staging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// SidecarSuffix is appended to a file name to find its metadata.
const SidecarSuffix = ".meta.json"

// Keywords accepts either a JSON array of strings or one comma-separated string.
type Keywords []string

func (k *Keywords) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*k = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = nil
		for _, kw := range strings.Split(s, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				*k = append(*k, kw)
			}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*k = list
	return nil
}

// Sidecar is the optional per-file metadata written by the crawler.
type Sidecar struct {
	Dataset     string            `json:"dataset"`
	RetrievedAt string            `json:"retrieved_at"`
	Locale      string            `json:"locale"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Keywords    Keywords          `json:"keywords"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ParseSidecar decodes a sidecar document.
func ParseSidecar(data []byte) (*Sidecar, error) {
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSidecar, err)
	}
	return &s, nil
}

// Retrieved parses RetrievedAt. Values without a zone are read as UTC.
func (s *Sidecar) Retrieved() (time.Time, bool) {
	if s.RetrievedAt == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s.RetrievedAt); err == nil {
		return t.UTC(), true
	}
	t, err := dateparse.ParseIn(s.RetrievedAt, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Meta flattens the sidecar into RawRecord metadata.
func (s *Sidecar) Meta() map[string]string {
	meta := make(map[string]string, len(s.Extra)+3)
	for k, v := range s.Extra {
		meta[k] = v
	}
	if s.Title != "" {
		meta["title"] = s.Title
	}
	if s.Description != "" {
		meta["description"] = s.Description
	}
	if len(s.Keywords) > 0 {
		meta["keywords"] = strings.Join(s.Keywords, ", ")
	}
	return meta
}
