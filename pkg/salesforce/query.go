package salesforce

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// QueryRows runs soql and flattens the records into a grid. The first row
// is fields; each following row holds those fields of one record rendered
// as text. Relationship fields use dotted paths ("Account.Name").
func QueryRows(ctx context.Context, c Client, soql string, fields []string) ([][]string, error) {
	if len(fields) == 0 {
		return nil, eris.New("sf: no fields requested")
	}

	var records []map[string]any
	if err := c.Query(ctx, soql, &records); err != nil {
		return nil, eris.Wrap(err, "sf: query rows")
	}

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, append([]string(nil), fields...))
	for _, rec := range records {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = fieldText(lookup(rec, f))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func lookup(rec map[string]any, path string) any {
	var cur any = rec
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func fieldText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
