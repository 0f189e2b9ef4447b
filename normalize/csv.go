package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/refinery/core"
)

func readDelimited(payload []byte, delim rune) ([]*grid, error) {
	r := csv.NewReader(strings.NewReader(decodeText(payload)))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	g := &grid{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrCorruptInput, err)
		}
		if g.header == nil {
			g.header = uniqueHeader(record)
			continue
		}
		if blankRow(record) {
			continue
		}
		g.rows = append(g.rows, cells(record))
	}
	if g.header == nil {
		return nil, nil
	}
	return []*grid{g}, nil
}

func blankRow(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
