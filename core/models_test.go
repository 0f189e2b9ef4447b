package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	id := RecordID("ons", "population.csv", "", 3)
	s := id.String()
	if len(s) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", s)
	}
	parsed, err := ParseID(s)
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if parsed != id {
		t.Errorf("ParseID(%q) = %d, want %d", s, parsed, id)
	}

	if _, err := ParseID("not-hex"); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestRecordID_DistinguishesRows(t *testing.T) {
	a := RecordID("ons", "data.xlsx", "Sheet1", 1)
	b := RecordID("ons", "data.xlsx", "Sheet1", 2)
	c := RecordID("ons", "data.xlsx", "Sheet2", 1)
	if a == b || a == c || b == c {
		t.Errorf("RecordID collided: %s %s %s", a, b, c)
	}
	if a != RecordID("ons", "data.xlsx", "Sheet1", 1) {
		t.Error("RecordID is not deterministic")
	}
}

func TestChunkIDFor(t *testing.T) {
	parent := IDFromContent("parent")
	if ChunkIDFor(parent, 0) != ChunkIDFor(parent, 0) {
		t.Error("ChunkIDFor is not deterministic")
	}
	if ChunkIDFor(parent, 0) == ChunkIDFor(parent, 1) {
		t.Error("ordinals must produce distinct ids")
	}
	if ChunkIDFor(parent, 0) == ChunkIDFor(IDFromContent("other"), 0) {
		t.Error("parents must produce distinct ids")
	}
}

func TestRawRecord_Ext(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.PDF", "pdf"},
		{"data.csv", "csv"},
		{"archive.tar.gz", "gz"},
		{"README", ""},
	}
	for _, tt := range tests {
		r := &RawRecord{Name: tt.name}
		if got := r.Ext(); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewNormalizedRecord(t *testing.T) {
	retrieved := time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC)
	raw := &RawRecord{
		Source:      "gov",
		Dataset:     "spending",
		Name:        "spend.csv",
		Position:    4,
		RetrievedAt: retrieved,
		Locale:      "en-GB",
		Meta:        map[string]string{"title": "Spend", "keywords": "finance, budget ,"},
	}

	rec := NewNormalizedRecord(raw, SourceKindTabular, "", 2)
	if rec.ID != RecordID("gov", "spend.csv", "", 2) {
		t.Errorf("unexpected id %s", rec.ID)
	}
	if rec.Origin.Position != 4 || rec.Origin.Dataset != "spending" {
		t.Errorf("unexpected origin %+v", rec.Origin)
	}
	if rec.Title != "Spend" {
		t.Errorf("Title = %q", rec.Title)
	}
	if len(rec.Keywords) != 2 || rec.Keywords[0] != "finance" || rec.Keywords[1] != "budget" {
		t.Errorf("Keywords = %v", rec.Keywords)
	}
	if !rec.RetrievedAt.Equal(retrieved) {
		t.Errorf("RetrievedAt = %v", rec.RetrievedAt)
	}
	if rec.HasBody {
		t.Error("body must be unset until populated")
	}
}

func TestNormalizedRecord_RenderFields(t *testing.T) {
	rec := &NormalizedRecord{Fields: []Field{
		{Name: "name", Value: "Alice"},
		{Name: "age", Type: FieldTypeInteger, Value: "30"},
		{Name: "email", Null: true},
	}}
	want := "name: Alice\nage: 30"
	if got := rec.RenderFields(); got != want {
		t.Errorf("RenderFields() = %q, want %q", got, want)
	}
}

func TestNormalizedRecord_Flags(t *testing.T) {
	rec := &NormalizedRecord{}
	if rec.HasFlag(FlagPIIRedacted) {
		t.Error("flag should be unset")
	}
	rec.SetFlag(FlagPIIRedacted, true)
	if !rec.HasFlag(FlagPIIRedacted) {
		t.Error("flag should be set")
	}
	rec.SetFlag(FlagPIIRedacted, false)
	if rec.HasFlag(FlagPIIRedacted) {
		t.Error("flag should be cleared")
	}
}
