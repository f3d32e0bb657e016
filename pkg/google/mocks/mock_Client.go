// Package mocks provides test doubles for the google client.
package mocks

import (
	"context"

	google "github.com/kraigferns/feedback-intel/pkg/google"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Values provides a mock function with given fields: ctx, spreadsheetID, rng
func (_m *MockClient) Values(ctx context.Context, spreadsheetID string, rng string) (*google.ValueRange, error) {
	ret := _m.Called(ctx, spreadsheetID, rng)

	if len(ret) == 0 {
		panic("no return value specified for Values")
	}

	var r0 *google.ValueRange
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*google.ValueRange, error)); ok {
		return rf(ctx, spreadsheetID, rng)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *google.ValueRange); ok {
		r0 = rf(ctx, spreadsheetID, rng)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*google.ValueRange)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, spreadsheetID, rng)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
