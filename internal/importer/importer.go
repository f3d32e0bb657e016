// Package importer pulls feedback rows from external sources and submits
// them for enrichment, skipping content that is already stored.
package importer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/fetcher"
	"github.com/kraigferns/feedback-intel/internal/intake"
	"github.com/kraigferns/feedback-intel/internal/model"
)

const maxConcurrentSources = 4

// ErrNotConfigured is returned when no sources are configured or a source
// lacks the credentials it needs. It is detected before anything is fetched.
var ErrNotConfigured = eris.New("importer: not configured")

// Submitter accepts one feedback submission.
type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (*intake.Result, error)
}

// RowSource fetches a grid whose first row is a header.
type RowSource interface {
	Rows(ctx context.Context) ([][]string, error)
}

// Source is one configured feedback origin.
type Source struct {
	Name    string
	Channel model.Source
	Columns config.ColumnMap
	Rows    RowSource
}

// Stats counts what happened to the rows of one source.
type Stats struct {
	Imported   int
	Duplicates int
	Skipped    int
}

// Importer runs every configured source and reports new items per source.
type Importer struct {
	load   func() ([]Source, error)
	intake Submitter
}

// New creates an Importer that builds its sources from cfg on every run.
func New(sub Submitter, cfg *config.Config, opener *fetcher.Opener) *Importer {
	return &Importer{
		load:   func() ([]Source, error) { return FromConfig(cfg, opener) },
		intake: sub,
	}
}

// NewWithSources creates an Importer over a fixed source list.
func NewWithSources(sub Submitter, sources []Source) *Importer {
	return &Importer{
		load: func() ([]Source, error) {
			if len(sources) == 0 {
				return nil, eris.Wrap(ErrNotConfigured, "importer: no sources")
			}
			return sources, nil
		},
		intake: sub,
	}
}

// Run imports from all sources concurrently. A source that fails is logged
// and reported with the items it created before failing. The only errors
// returned are configuration errors and context cancellation.
func (im *Importer) Run(ctx context.Context) (map[string]int, error) {
	sources, err := im.load()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	counts := make(map[string]int, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)

	for _, src := range sources {
		g.Go(func() error {
			stats, err := im.importSource(gctx, src)
			log := zap.L().With(
				zap.String("source", src.Name),
				zap.Int("imported", stats.Imported),
				zap.Int("duplicates", stats.Duplicates),
				zap.Int("skipped", stats.Skipped),
			)
			if err != nil {
				log.Error("importer: source failed", zap.Error(err))
			} else {
				log.Info("importer: source done")
			}

			mu.Lock()
			counts[src.Name] = stats.Imported
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return counts, eris.Wrap(err, "importer: run cancelled")
	}
	return counts, nil
}

func (im *Importer) importSource(ctx context.Context, src Source) (Stats, error) {
	var stats Stats

	grid, err := src.Rows.Rows(ctx)
	if err != nil {
		return stats, eris.Wrapf(err, "importer: fetch %s", src.Name)
	}
	if len(grid) == 0 {
		return stats, nil
	}

	cols := resolveColumns(src.Columns)
	for i, row := range grid[1:] {
		sub, ok := rowSubmission(row, cols, src.Channel)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, known := model.ParseTier(sub.CustomerTier); !known {
			zap.L().Debug("importer: unknown tier, using free",
				zap.String("source", src.Name),
				zap.Int("row", i+2),
				zap.String("tier", sub.CustomerTier),
			)
			sub.CustomerTier = ""
		}

		_, err := im.intake.Submit(ctx, sub)
		switch {
		case err == nil:
			stats.Imported++
		case errors.Is(err, intake.ErrDuplicate):
			stats.Duplicates++
		case errors.Is(err, intake.ErrInvalid):
			stats.Skipped++
			zap.L().Debug("importer: invalid row",
				zap.String("source", src.Name),
				zap.Int("row", i+2),
				zap.Error(err),
			)
		default:
			return stats, eris.Wrapf(err, "importer: submit %s row %d", src.Name, i+2)
		}
	}
	return stats, nil
}

// columns holds resolved grid column indexes. Negative means absent.
type columns struct {
	content int
	author  int
	tier    int
}

func resolveColumns(c config.ColumnMap) columns {
	if c == (config.ColumnMap{}) {
		return columns{content: 0, author: 1, tier: 2}
	}
	cols := columns{content: 0, author: -1, tier: -1}
	if c.Content != nil {
		cols.content = *c.Content
	}
	if c.Author != nil {
		cols.author = *c.Author
	}
	if c.Tier != nil {
		cols.tier = *c.Tier
	}
	return cols
}

// rowSubmission builds a submission from one grid row. Rows too short to
// hold the content column, or whose content is blank, are rejected.
func rowSubmission(row []string, cols columns, channel model.Source) (intake.Submission, bool) {
	if cols.content < 0 || len(row) < cols.content+1 {
		return intake.Submission{}, false
	}
	content := HTMLToText(row[cols.content])
	if content == "" {
		return intake.Submission{}, false
	}

	sub := intake.Submission{
		Source:  string(channel),
		Content: content,
	}
	if a := cell(row, cols.author); a != "" {
		sub.Author = &a
	}
	sub.CustomerTier = cell(row, cols.tier)
	return sub, true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Names returns the source names of counts in sorted order.
func Names(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
