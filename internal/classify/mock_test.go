package classify

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kraigferns/feedback-intel/internal/provider"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func task(name string) interface{} {
	return mock.MatchedBy(func(req provider.Request) bool { return req.Task == name })
}
