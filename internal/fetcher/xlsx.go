package fetcher

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // overrides SheetIndex
}

// ReadXLSX reads one worksheet of the workbook at path.
func ReadXLSX(path string, opts XLSXOptions) (Grid, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	return sheetGrid(f, opts)
}

// ReadXLSXFrom reads one worksheet of a workbook streamed from r, such as a
// download.
func ReadXLSXFrom(r io.Reader, opts XLSXOptions) (Grid, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read workbook")
	}
	f, err := xlsx.OpenBinary(raw)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: parse workbook")
	}
	return sheetGrid(f, opts)
}

func sheetGrid(f *xlsx.File, opts XLSXOptions) (Grid, error) {
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	grid := make(Grid, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
