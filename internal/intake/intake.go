// Package intake validates and records new feedback, then hands it to the
// enrichment workflow. The API and the importer both submit through it.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kraigferns/feedback-intel/internal/fingerprint"
	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/scorer"
	"github.com/kraigferns/feedback-intel/internal/store"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

// StatusProcessing is reported for every accepted submission.
const StatusProcessing = "processing"

var (
	// ErrDuplicate matches any DuplicateError.
	ErrDuplicate = eris.New("intake: duplicate content")
	// ErrInvalid matches any ValidationError.
	ErrInvalid = eris.New("intake: invalid submission")
)

// DuplicateError reports the existing item holding the same content.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("intake: duplicate of feedback %s", e.ID)
}

// Is lets errors.Is(err, ErrDuplicate) match.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Submission is raw feedback as received from a caller.
type Submission struct {
	Source       string  `json:"source"`
	Content      string  `json:"content"`
	Author       *string `json:"author,omitempty"`
	CustomerTier string  `json:"customer_tier,omitempty"`
}

// Result describes an accepted submission.
type Result struct {
	ID        string             `json:"id"`
	RunHandle workflow.RunHandle `json:"run_handle"`
	Status    string             `json:"status"`
}

// Service records submissions and starts their enrichment runs.
type Service struct {
	store  store.Store
	engine workflow.Engine
	scorer *scorer.Scorer
	now    func() time.Time
}

// New creates a Service.
func New(st store.Store, engine workflow.Engine, sc *scorer.Scorer) *Service {
	return &Service{store: st, engine: engine, scorer: sc, now: time.Now}
}

// Validate normalizes sub into a feedback item without touching storage.
func Validate(sub Submission) (*model.FeedbackItem, error) {
	if strings.TrimSpace(sub.Source) == "" {
		return nil, &ValidationError{Field: "source", Reason: "is required"}
	}
	src, ok := model.ParseSource(sub.Source)
	if !ok {
		return nil, &ValidationError{Field: "source", Reason: fmt.Sprintf("%q is not one of %v", sub.Source, model.Sources)}
	}

	content := strings.TrimSpace(sub.Content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "is required"}
	}

	tier, ok := model.ParseTier(sub.CustomerTier)
	if !ok {
		return nil, &ValidationError{Field: "customer_tier", Reason: fmt.Sprintf("%q is not one of free, pro, enterprise", sub.CustomerTier)}
	}

	var author *string
	if sub.Author != nil {
		if a := strings.TrimSpace(*sub.Author); a != "" {
			author = &a
		}
	}

	return &model.FeedbackItem{
		Source:       src,
		Content:      content,
		ContentHash:  fingerprint.Of(content),
		Author:       author,
		CustomerTier: tier,
	}, nil
}

// Submit validates sub, rejects content already stored, creates the row and
// starts its enrichment run.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	item, err := Validate(sub)
	if err != nil {
		return nil, err
	}

	id, found, err := s.store.ExistsByHash(ctx, item.ContentHash)
	if err != nil {
		return nil, eris.Wrap(err, "intake: check duplicate")
	}
	if found {
		return nil, &DuplicateError{ID: id}
	}

	arr := s.scorer.ARREstimate(item.CustomerTier)
	item.ARREstimate = &arr
	item.CreatedAt = s.now()

	if err := s.store.CreateFeedback(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent insert of the same content.
			if id, found, lerr := s.store.ExistsByHash(ctx, item.ContentHash); lerr == nil && found {
				return nil, &DuplicateError{ID: id}
			}
		}
		return nil, eris.Wrap(err, "intake: create feedback")
	}

	handle, err := s.engine.Start(ctx, item.Payload())
	if err != nil {
		// Drop the row so a retry of the same content is not rejected as a
		// duplicate of something that never got a run.
		if derr := s.store.DeleteFeedback(context.WithoutCancel(ctx), item.ID); derr != nil {
			zap.L().Error("intake: remove feedback after failed start",
				zap.String("feedback_id", item.ID),
				zap.Error(derr),
			)
		}
		return nil, eris.Wrapf(err, "intake: start enrichment for %s", item.ID)
	}

	zap.L().Info("intake: feedback accepted",
		zap.String("feedback_id", item.ID),
		zap.String("source", string(item.Source)),
		zap.String("run_id", string(handle)),
	)
	return &Result{ID: item.ID, RunHandle: handle, Status: StatusProcessing}, nil
}
