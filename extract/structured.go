package extract

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/poiesic/refinery/core"
)

// Envelope is the staged text shape written by crawlers: source metadata
// alongside the document text.
type Envelope struct {
	Metadata map[string]any `json:"metadata"`
	Text     *string        `json:"text"`
}

// ParseEnvelope decodes payload as an Envelope. It reports false when the
// payload is not JSON or has no text member.
func ParseEnvelope(payload []byte) (*Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Text == nil {
		return nil, false
	}
	return &env, true
}

var markupHint = regexp.MustCompile(`(?i)<(html|body|p|div|br|h[1-6]|ul|li|table|article)\b`)

// LooksLikeHTML reports whether text contains common HTML block tags.
func LooksLikeHTML(text string) bool {
	return markupHint.MatchString(text)
}

func (e *Extractor) extractStructured(raw *core.RawRecord, rec *core.NormalizedRecord) error {
	switch raw.Ext() {
	case "xml", "rdf", "atom", "rss":
		text, err := ExtractXML(strings.NewReader(decodeText(raw.Payload)))
		if err != nil {
			return err
		}
		rec.SetBody(text)
		return nil
	case "json":
		env, ok := ParseEnvelope(raw.Payload)
		if !ok {
			return fmt.Errorf("%w: %s is not a text envelope", core.ErrUnsupportedFormat, raw.Ref())
		}
		applyEnvelopeMetadata(rec, env.Metadata)
		if LooksLikeHTML(*env.Text) {
			doc, err := ExtractHTML(strings.NewReader(*env.Text))
			if err != nil {
				return err
			}
			applyDocument(rec, doc)
			return nil
		}
		rec.SetBody(CollapseWhitespace(*env.Text))
		return nil
	}

	text := decodeText(raw.Payload)
	if LooksLikeHTML(text) {
		return e.extractMarkup(raw.Payload, rec)
	}
	rec.SetBody(CollapseWhitespace(text))
	return nil
}

func applyEnvelopeMetadata(rec *core.NormalizedRecord, meta map[string]any) {
	if rec.Title == "" {
		rec.Title = metaString(meta["title"])
	}
	if rec.Description == "" {
		rec.Description = metaString(meta["description"])
	}
	if len(rec.Keywords) == 0 {
		switch kw := meta["keywords"].(type) {
		case []any:
			for _, k := range kw {
				if s := metaString(k); s != "" {
					rec.Keywords = append(rec.Keywords, s)
				}
			}
		case string:
			for _, k := range strings.Split(kw, ",") {
				if k = strings.TrimSpace(k); k != "" {
					rec.Keywords = append(rec.Keywords, k)
				}
			}
		}
	}
	if rec.Locale == "" {
		rec.Locale = metaString(meta["language"])
	}
}

func metaString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// ExtractXML concatenates the character data of an XML document. Elements
// that directly held text end with a paragraph boundary.
func ExtractXML(r io.Reader) (string, error) {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	var (
		paragraphs []string
		current    strings.Builder
	)
	flush := func() {
		if text := strings.Join(strings.Fields(current.String()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
		current.Reset()
	}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(paragraphs) == 0 && current.Len() == 0 {
				return "", fmt.Errorf("%w: %w", core.ErrCorruptInput, err)
			}
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			current.WriteString(" ")
			current.Write(t)
		case xml.EndElement:
			flush()
		}
	}
	flush()
	return strings.Join(paragraphs, "\n\n"), nil
}
