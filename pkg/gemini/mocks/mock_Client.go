// Package mocks provides test doubles for the gemini client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	gemini "github.com/kraigferns/feedback-intel/pkg/gemini"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockClient) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Generate")
	}

	var r0 *gemini.GenerateResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, gemini.GenerateRequest) (*gemini.GenerateResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, gemini.GenerateRequest) *gemini.GenerateResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gemini.GenerateResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, gemini.GenerateRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
