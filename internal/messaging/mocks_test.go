package messaging

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/medrex/teleconsult/pkg/types"
)

// MockMessagingAPI is a mock implementation of interfaces.MessagingAPI
type MockMessagingAPI struct {
	mock.Mock
}

func (m *MockMessagingAPI) SendMessage(ctx context.Context, authToken, recipientID, content string) (*types.Message, error) {
	args := m.Called(ctx, authToken, recipientID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Message), args.Error(1)
}

func (m *MockMessagingAPI) ListThreads(ctx context.Context, authToken string) ([]*types.Thread, error) {
	args := m.Called(ctx, authToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Thread), args.Error(1)
}

func (m *MockMessagingAPI) GetMessages(ctx context.Context, authToken, threadID string) ([]types.Message, error) {
	args := m.Called(ctx, authToken, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Message), args.Error(1)
}

// recordingRefresher counts refreshes per thread and fails on demand
type recordingRefresher struct {
	mu     sync.Mutex
	calls  map[string]int
	failOn func(n int) error
	total  int
}

func newRecordingRefresher() *recordingRefresher {
	return &recordingRefresher{calls: make(map[string]int)}
}

func (r *recordingRefresher) RefreshMessages(ctx context.Context, threadID string) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[threadID]++
	r.total++
	if r.failOn != nil {
		if err := r.failOn(r.total); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (r *recordingRefresher) count(threadID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[threadID]
}
