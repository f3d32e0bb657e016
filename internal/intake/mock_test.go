package intake

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kraigferns/feedback-intel/internal/model"
	"github.com/kraigferns/feedback-intel/internal/workflow"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Start(ctx context.Context, payload model.FeedbackPayload) (workflow.RunHandle, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(workflow.RunHandle), args.Error(1)
}
