package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
	// MaxRows stops reading after this many rows. 0 = unlimited.
	MaxRows int
}

// ReadCSV parses r into a Grid. Rows may have differing field counts; a
// leading UTF-8 byte order mark is dropped.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (Grid, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	var grid Grid
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}
		if opts.MaxRows > 0 && len(grid) >= opts.MaxRows {
			return grid, nil
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return grid, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(grid)+1)
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		grid = append(grid, record)
	}
}
