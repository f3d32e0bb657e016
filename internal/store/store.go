// Package store persists feedback items, enrichment runs and their step
// checkpoints.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kraigferns/feedback-intel/internal/config"
	"github.com/kraigferns/feedback-intel/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when an item with the same content hash exists.
	ErrDuplicate = eris.New("store: duplicate content hash")
)

// DefaultListLimit caps feedback listings unless All is set.
const DefaultListLimit = 100

// FeedbackFilter narrows a feedback listing. Empty fields match everything.
type FeedbackFilter struct {
	Source    string `json:"source,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Tier      string `json:"customer_tier,omitempty"`
	Theme     string `json:"theme,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	// All disables the row cap, for aggregation.
	All bool `json:"-"`
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Statuses     []model.RunStatus `json:"statuses,omitempty"`
	FeedbackID   string            `json:"feedback_id,omitempty"`
	CreatedAfter time.Time         `json:"created_after,omitempty"`
	Limit        int               `json:"limit,omitempty"`
}

// RunUpdate moves a run to a new status. Moving to running counts an attempt.
type RunUpdate struct {
	Status      model.RunStatus
	CurrentStep string
	Error       string
}

// Store defines the persistence interface for intake, enrichment and insights.
type Store interface {
	// Feedback
	CreateFeedback(ctx context.Context, item *model.FeedbackItem) error
	GetFeedback(ctx context.Context, id string) (*model.FeedbackItem, error)
	ExistsByHash(ctx context.Context, hash string) (id string, found bool, err error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]model.FeedbackItem, error)
	// SaveEnrichment writes every enrichment column and processed_at in one
	// update. It reports false when the item was already processed.
	SaveEnrichment(ctx context.Context, id string, e model.Enrichment) (bool, error)
	ClearFeedback(ctx context.Context) (int64, error)
	// DeleteFeedback removes one item together with its runs and steps.
	DeleteFeedback(ctx context.Context, id string) error

	// Runs
	CreateRun(ctx context.Context, payload model.FeedbackPayload) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Step checkpoints
	SaveStep(ctx context.Context, rec model.StepRecord) error
	LoadSteps(ctx context.Context, runID string) ([]model.StepRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
