package core

import (
	"encoding/binary"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a stable logical identifier for records.
// It is derived from the record's origin using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as 16 lowercase hex digits.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses the hex form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a record id", ErrInvalidRecord, s)
	}
	return ID(v), nil
}

// RecordID derives the identifier of a normalized record from where it came
// from. Tabular rows include their sheet and row number; documents use row 0.
func RecordID(source, name, sheet string, row int) ID {
	return IDFromContent(source + "\x00" + name + "\x00" + sheet + "\x00" + strconv.Itoa(row))
}

// ChunkID identifies a chunk. It is a pure function of the parent record
// identifier and the chunk ordinal.
type ChunkID uint64

// ChunkIDFor returns the identifier of the ordinal-th chunk of parent.
func ChunkIDFor(parent ID, ordinal int) ChunkID {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(parent))
	binary.BigEndian.PutUint64(buf[8:], uint64(ordinal))
	h, _ := blake2b.New(8, nil)
	h.Write(buf[:])
	return ChunkID(binary.LittleEndian.Uint64(h.Sum(nil)))
}

func (id ChunkID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// SourceKind selects the entry branch that turns a raw payload into records.
type SourceKind int

const (
	// SourceKindUnknown is the zero value; records of this kind are rejected.
	SourceKindUnknown SourceKind = iota
	// SourceKindTabular covers delimited text, row-record JSON and spreadsheets.
	SourceKindTabular
	// SourceKindMarkup covers HTML and XHTML documents.
	SourceKindMarkup
	// SourceKindScannedDocument covers paginated documents and page images.
	SourceKindScannedDocument
	// SourceKindStructuredText covers XML, plain text and staged text envelopes.
	SourceKindStructuredText
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindTabular:
		return "tabular"
	case SourceKindMarkup:
		return "markup"
	case SourceKindScannedDocument:
		return "scanned_document"
	case SourceKindStructuredText:
		return "structured_text"
	default:
		return "unknown"
	}
}

// RawRecord is one staged input file. It is immutable once staged.
type RawRecord struct {
	Source      string // Source-name tag (the staging sub-directory)
	Dataset     string // Origin dataset name
	Name        string // File name within the source directory
	Position    int    // Ordinal of the file within its source
	RetrievedAt time.Time
	Locale      string // BCP 47 tag of the publishing locale, if known
	Payload     []byte
	Meta        map[string]string
}

// Ext returns the lowercased file extension without the leading dot.
func (r *RawRecord) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(r.Name)), ".")
}

// Ref returns the non-owning back-reference stored on derived records.
func (r *RawRecord) Ref() RawRef {
	return RawRef{Source: r.Source, Dataset: r.Dataset, Name: r.Name, Position: r.Position}
}

// RawRef points back at the RawRecord a normalized record was derived from.
type RawRef struct {
	Source   string
	Dataset  string
	Name     string
	Position int
}

func (r RawRef) String() string {
	return r.Source + "/" + r.Name
}

// FieldType is the coerced type of a field value.
type FieldType int

const (
	FieldTypeString FieldType = iota
	FieldTypeInteger
	FieldTypeFloat
	FieldTypeDate
	FieldTypeBoolean
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeInteger:
		return "integer"
	case FieldTypeFloat:
		return "float"
	case FieldTypeDate:
		return "date"
	case FieldTypeBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// Field is one named typed value of a record. Values are kept in their
// canonical string rendering (integers without separators, dates as ISO-8601).
type Field struct {
	Name    string
	Type    FieldType
	Value   string
	Null    bool
	Missing bool // Set by the cleaner when the value was absent and flagged
}

// Record flags.
const (
	FlagPIIRedacted      = "pii_redacted"
	FlagLowConfidenceOCR = "low_confidence_ocr"
	FlagUnresolvedDate   = "unresolved_date"
	FlagMissingPrefix    = "missing:"
)

// NormalizedRecord is one row of the canonical schema.
type NormalizedRecord struct {
	ID          ID
	Origin      RawRef
	Kind        SourceKind
	Sheet       string
	Row         int
	Fields      []Field
	Body        string
	HasBody     bool // False until a normalizer or extractor populates Body
	Title       string
	Description string
	Keywords    []string
	Locale      string
	Fingerprint string // Near-duplicate fingerprint, set by the cleaner
	RetrievedAt time.Time
	ProcessedAt time.Time
	Warnings    []string
	Flags       map[string]bool
}

// NewNormalizedRecord creates a record derived from raw. Sheet and row are
// only meaningful for tabular sources.
func NewNormalizedRecord(raw *RawRecord, kind SourceKind, sheet string, row int) *NormalizedRecord {
	return &NormalizedRecord{
		ID:          RecordID(raw.Source, raw.Name, sheet, row),
		Origin:      raw.Ref(),
		Kind:        kind,
		Sheet:       sheet,
		Row:         row,
		Title:       raw.Meta["title"],
		Description: raw.Meta["description"],
		Keywords:    splitKeywords(raw.Meta["keywords"]),
		Locale:      raw.Locale,
		RetrievedAt: raw.RetrievedAt,
		ProcessedAt: time.Now().UTC(),
	}
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, kw := range strings.Split(s, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// SetBody populates the free-text body.
func (r *NormalizedRecord) SetBody(body string) {
	r.Body = body
	r.HasBody = true
}

// Field returns the named field.
func (r *NormalizedRecord) Field(name string) (*Field, bool) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// Warn records a non-fatal processing warning.
func (r *NormalizedRecord) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// SetFlag sets a cleanliness flag.
func (r *NormalizedRecord) SetFlag(name string, value bool) {
	if r.Flags == nil {
		r.Flags = make(map[string]bool)
	}
	r.Flags[name] = value
}

// HasFlag reports whether the named flag is set to true.
func (r *NormalizedRecord) HasFlag(name string) bool {
	return r.Flags[name]
}

// RenderFields renders the non-null fields as "name: value" lines. Tabular
// records use this rendering as their body.
func (r *NormalizedRecord) RenderFields() string {
	var b strings.Builder
	for _, f := range r.Fields {
		if f.Null {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Language code used when detection is not confident enough.
const LanguageUnknown = "und"

// EnrichedRecord is a NormalizedRecord plus derived metadata.
// Counts are always computed from the final cleaned body.
type EnrichedRecord struct {
	NormalizedRecord
	Language           string
	LanguageConfidence float64
	Topics             []string
	WordCount          int
	TokenCount         int
}

// Chunk is a contiguous slice of one record's body. Start and End are
// character (rune) offsets into the body, End exclusive.
type Chunk struct {
	ID       ChunkID
	ParentID ID
	Ordinal  int
	Start    int
	End      int
	Text     string
}

// VectorIndexEntry maps an index position to a chunk.
type VectorIndexEntry struct {
	Position int
	ChunkID  ChunkID
}

// SearchHit is one nearest-neighbor result.
type SearchHit struct {
	ChunkID  ChunkID
	Distance float32
}

// Checkpoint records pipeline progress for one source.
type Checkpoint struct {
	Source    string
	Position  int // Highest position whose output is fully persisted
	Completed int // Number of completed files
	UpdatedAt time.Time
}
