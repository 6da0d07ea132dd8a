package interfaces

import (
	"context"

	"github.com/medrex/teleconsult/pkg/types"
)

// MessagingAPI is the upstream chat API, called with the session's bearer token
type MessagingAPI interface {
	SendMessage(ctx context.Context, authToken, recipientID, content string) (*types.Message, error)
	ListThreads(ctx context.Context, authToken string) ([]*types.Thread, error)
	GetMessages(ctx context.Context, authToken, threadID string) ([]types.Message, error)
}

// ThreadStore owns the thread list and per-thread messages of one client session
type ThreadStore interface {
	ListThreads(ctx context.Context) ([]*types.Thread, error)
	GetMessages(ctx context.Context, threadID string) ([]types.Message, error)
	SendMessage(ctx context.Context, recipientID, content string) (*types.Message, error)
	Threads() []*types.Thread
	Messages(threadID string) []types.Message
}

// NotificationDispatcher posts system notices into threads
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notice types.Notice) error
}
