package importer

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/fetcher"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/pkg/google"
	"github.com/kraigferns/feedback-intel/pkg/notion"
	"github.com/kraigferns/feedback-intel/pkg/salesforce"
)

// Source kinds accepted in import.sources.
const (
	KindSheets     = "sheets"
	KindXLSX       = "xlsx"
	KindCSV        = "csv"
	KindFTP        = "ftp"
	KindNotion     = "notion"
	KindSalesforce = "salesforce"
)

const defaultSheet = "Sheet1"

// FromConfig builds the configured sources. Every source is checked for the
// settings and credentials it needs; nothing is fetched.
func FromConfig(cfg *config.Config, opener *fetcher.Opener) ([]Source, error) {
	if len(cfg.Import.Sources) == 0 {
		return nil, eris.Wrap(ErrNotConfigured, "importer: no sources in import.sources")
	}

	sources := make([]Source, 0, len(cfg.Import.Sources))
	seen := make(map[string]bool, len(cfg.Import.Sources))
	for i, sc := range cfg.Import.Sources {
		name := sc.Name
		if name == "" {
			name = sc.Kind
		}
		if seen[name] {
			return nil, eris.Wrapf(ErrNotConfigured, "importer: source %d: duplicate name %q", i, name)
		}
		seen[name] = true

		channel, ok := model.ParseSource(sc.Channel)
		if !ok {
			return nil, eris.Wrapf(ErrNotConfigured, "importer: source %q: invalid channel %q", name, sc.Channel)
		}

		src := Source{Name: name, Channel: channel, Columns: sc.Columns}
		rows, cols, err := rowSource(cfg, sc, opener)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: source %q", name)
		}
		src.Rows = rows
		if cols != nil {
			src.Columns = *cols
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// rowSource returns the fetcher for sc. Record-based kinds also return the
// column layout implied by their field mapping.
func rowSource(cfg *config.Config, sc config.SourceConfig, opener *fetcher.Opener) (RowSource, *config.ColumnMap, error) {
	switch strings.ToLower(sc.Kind) {
	case KindSheets:
		sh := cfg.Import.Sheets
		if sh.APIKey == "" || sh.SpreadsheetID == "" {
			return nil, nil, eris.Wrap(ErrNotConfigured, "import.sheets.api_key and import.sheets.spreadsheet_id are required")
		}
		sheet := sc.Sheet
		if sheet == "" {
			sheet = defaultSheet
		}
		var opts []google.Option
		if sh.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(sh.BaseURL))
		}
		return &sheetsSource{
			client:        google.NewClient(sh.APIKey, opts...),
			spreadsheetID: sh.SpreadsheetID,
			sheet:         sheet,
			pageSize:      sh.PageSize,
		}, nil, nil

	case KindXLSX:
		loc := location(sc)
		if loc == "" {
			return nil, nil, eris.Wrap(ErrNotConfigured, "xlsx source needs path or url")
		}
		return &xlsxSource{opener: opener, location: loc, opts: fetcher.XLSXOptions{SheetName: sc.Sheet}}, nil, nil

	case KindCSV:
		loc := location(sc)
		if loc == "" {
			return nil, nil, eris.Wrap(ErrNotConfigured, "csv source needs path or url")
		}
		return &csvSource{opener: opener, location: loc}, nil, nil

	case KindFTP:
		if !strings.HasPrefix(strings.ToLower(sc.URL), "ftp://") {
			return nil, nil, eris.Wrap(ErrNotConfigured, "ftp source needs an ftp:// url")
		}
		return &csvSource{opener: opener, location: sc.URL}, nil, nil

	case KindNotion:
		if cfg.Notion.Token == "" || sc.DatabaseID == "" {
			return nil, nil, eris.Wrap(ErrNotConfigured, "notion.token and database_id are required")
		}
		fields, cols, err := fieldColumns(sc.Fields)
		if err != nil {
			return nil, nil, err
		}
		return &notionSource{client: notion.NewClient(cfg.Notion.Token), databaseID: sc.DatabaseID, properties: fields}, &cols, nil

	case KindSalesforce:
		sf := cfg.Salesforce
		if sf.ClientID == "" || sf.Username == "" || sf.KeyPath == "" || sc.SOQL == "" {
			return nil, nil, eris.Wrap(ErrNotConfigured, "salesforce.client_id, username, key_path and soql are required")
		}
		fields, cols, err := fieldColumns(sc.Fields)
		if err != nil {
			return nil, nil, err
		}
		return &salesforceSource{cfg: sf, soql: sc.SOQL, fields: fields}, &cols, nil

	default:
		return nil, nil, eris.Wrapf(ErrNotConfigured, "unsupported kind %q", sc.Kind)
	}
}

func location(sc config.SourceConfig) string {
	if sc.Path != "" {
		return sc.Path
	}
	return sc.URL
}

// fieldColumns lists the mapped record fields in content, author, tier
// order and returns the matching column layout.
func fieldColumns(f config.FieldMap) ([]string, config.ColumnMap, error) {
	if f.Content == "" {
		return nil, config.ColumnMap{}, eris.Wrap(ErrNotConfigured, "fields.content is required")
	}
	fields := []string{f.Content}
	cols := config.ColumnMap{Content: config.Col(0)}
	if f.Author != "" {
		cols.Author = config.Col(len(fields))
		fields = append(fields, f.Author)
	}
	if f.Tier != "" {
		cols.Tier = config.Col(len(fields))
		fields = append(fields, f.Tier)
	}
	return fields, cols, nil
}

type sheetsSource struct {
	client        google.Client
	spreadsheetID string
	sheet         string
	pageSize      int
}

func (s *sheetsSource) Rows(ctx context.Context) ([][]string, error) {
	return google.ReadSheet(ctx, s.client, s.spreadsheetID, s.sheet, s.pageSize)
}

type xlsxSource struct {
	opener   *fetcher.Opener
	location string
	opts     fetcher.XLSXOptions
}

func (s *xlsxSource) Rows(ctx context.Context) ([][]string, error) {
	rc, err := s.opener.Open(ctx, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return fetcher.ReadXLSXFrom(rc, s.opts)
}

type csvSource struct {
	opener   *fetcher.Opener
	location string
}

func (s *csvSource) Rows(ctx context.Context) ([][]string, error) {
	rc, err := s.opener.Open(ctx, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck
	return fetcher.ReadCSV(ctx, rc, fetcher.CSVOptions{LazyQuotes: true})
}

type notionSource struct {
	client     notion.Client
	databaseID string
	properties []string
}

func (s *notionSource) Rows(ctx context.Context) ([][]string, error) {
	return notion.Rows(ctx, s.client, s.databaseID, s.properties)
}

type salesforceSource struct {
	cfg    config.SalesforceConfig
	soql   string
	fields []string
}

func (s *salesforceSource) Rows(ctx context.Context) ([][]string, error) {
	key, err := os.ReadFile(s.cfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "importer: read salesforce private key")
	}
	client, err := salesforce.Connect(salesforce.JWTCreds{
		LoginURL:   s.cfg.LoginURL,
		Username:   s.cfg.Username,
		ClientID:   s.cfg.ClientID,
		PrivateKey: key,
	})
	if err != nil {
		return nil, err
	}
	return salesforce.QueryRows(ctx, client, s.soql, s.fields)
}
