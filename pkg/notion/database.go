package notion

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

const pageSize = 100

// QueryAll fetches every page of a database, oldest first, following the
// pagination cursor.
func QueryAll(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{
		Sorts: []notionapi.SortObject{
			{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
		},
		PageSize: pageSize,
	}
	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		req = &notionapi.DatabaseQueryRequest{
			Sorts:       req.Sorts,
			PageSize:    pageSize,
			StartCursor: resp.NextCursor,
		}
	}
}

// Rows flattens a database into a grid. The first row is the list of
// property names; each following row holds the plain text of those
// properties for one page. Missing properties become empty cells.
func Rows(ctx context.Context, c Client, dbID string, properties []string) ([][]string, error) {
	if len(properties) == 0 {
		return nil, eris.New("notion: no properties requested")
	}

	pages, err := QueryAll(ctx, c, dbID)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(pages)+1)
	rows = append(rows, append([]string(nil), properties...))
	for _, p := range pages {
		row := make([]string, len(properties))
		for i, name := range properties {
			if prop, ok := p.Properties[name]; ok {
				row[i] = PropertyText(prop)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// PropertyText renders the value of a page property as plain text. Types
// with no sensible text form render as "".
func PropertyText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.EmailProperty:
		return p.Email
	case *notionapi.URLProperty:
		return p.URL
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	default:
		return ""
	}
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.PlainText)
	}
	return b.String()
}
