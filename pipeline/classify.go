package pipeline

import (
	"unicode/utf8"

	"github.com/poiesic/refinery/core"
	"github.com/poiesic/refinery/extract"
	"github.com/poiesic/refinery/normalize"
)

var kindsByExt = map[string]core.SourceKind{
	"csv": core.SourceKindTabular, "tsv": core.SourceKindTabular, "tab": core.SourceKindTabular,
	"jsonl": core.SourceKindTabular, "ndjson": core.SourceKindTabular,
	"xlsx": core.SourceKindTabular, "xlsm": core.SourceKindTabular,
	"xls": core.SourceKindTabular, "ods": core.SourceKindTabular,

	"html": core.SourceKindMarkup, "htm": core.SourceKindMarkup, "xhtml": core.SourceKindMarkup,

	"pdf": core.SourceKindScannedDocument, "png": core.SourceKindScannedDocument,
	"jpg": core.SourceKindScannedDocument, "jpeg": core.SourceKindScannedDocument,
	"tif": core.SourceKindScannedDocument, "tiff": core.SourceKindScannedDocument,
	"bmp": core.SourceKindScannedDocument, "gif": core.SourceKindScannedDocument,
	"webp": core.SourceKindScannedDocument,

	"xml": core.SourceKindStructuredText, "rdf": core.SourceKindStructuredText,
	"atom": core.SourceKindStructuredText, "rss": core.SourceKindStructuredText,
	"txt": core.SourceKindStructuredText, "text": core.SourceKindStructuredText,
	"md": core.SourceKindStructuredText,
}

// Classify selects the entry branch for raw by extension. JSON is a staged
// text envelope when it has the envelope shape and row records otherwise.
// Files without a known extension are sniffed; undecodable ones are
// core.SourceKindUnknown.
func Classify(raw *core.RawRecord) core.SourceKind {
	ext := raw.Ext()
	if ext == "json" {
		if _, ok := extract.ParseEnvelope(raw.Payload); ok {
			return core.SourceKindStructuredText
		}
		return core.SourceKindTabular
	}
	if kind, ok := kindsByExt[ext]; ok {
		return kind
	}
	switch {
	case len(raw.Payload) == 0:
		return core.SourceKindUnknown
	case extract.LooksLikeHTML(string(raw.Payload)):
		return core.SourceKindMarkup
	case normalize.Sniff(raw.Payload) != normalize.FormatUnknown:
		return core.SourceKindTabular
	case utf8.Valid(raw.Payload):
		return core.SourceKindStructuredText
	}
	return core.SourceKindUnknown
}
