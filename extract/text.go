package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeText(payload []byte) string {
	payload = bytes.TrimPrefix(payload, utf8BOM)
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}

// CollapseWhitespace trims every line, collapses runs of whitespace inside
// lines and runs of blank lines, and drops leading and trailing blank lines.
// Form feeds survive so page boundaries stay intact.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		if line == "\f" {
			out = append(out, line)
			blank = false
			continue
		}
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
