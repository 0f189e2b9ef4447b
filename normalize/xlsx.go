package normalize

import (
	"bytes"
	"fmt"

	"github.com/poiesic/refinery/core"
	"github.com/xuri/excelize/v2"
)

func readXLSX(payload []byte) ([]*grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptInput, err)
	}
	defer f.Close()

	var grids []*grid
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %w", core.ErrCorruptInput, sheet, err)
		}
		g := &grid{sheet: sheet}
		for _, row := range rows {
			if g.header == nil {
				if blankRow(row) {
					continue
				}
				g.header = uniqueHeader(row)
				continue
			}
			if blankRow(row) {
				continue
			}
			g.rows = append(g.rows, cells(row))
		}
		if g.header != nil {
			grids = append(grids, g)
		}
	}
	return grids, nil
}
