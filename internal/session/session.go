package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medrex/teleconsult/internal/messaging"
	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

// Session is the server-side state of one signed-in user: their threads,
// the poll of whichever thread they are viewing, and their notice sender.
type Session struct {
	userID    string
	authToken string

	threads *messaging.ThreadStore
	sync    *messaging.MessageSync
	notices interfaces.NotificationDispatcher
	store   interfaces.SessionStore
	logger  *logger.Logger

	// lastSeen is guarded by the owning Manager's mutex
	lastSeen time.Time

	mu   sync.Mutex
	poll *messaging.PollHandle
}

// Restored describes what Restore reopened
type Restored struct {
	Thread   *types.Thread   `json:"thread,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`
	DoctorID string          `json:"doctor_id,omitempty"`
}

// UserID returns the session owner
func (s *Session) UserID() string { return s.userID }

// Threads returns the session's thread store
func (s *Session) Threads() *messaging.ThreadStore { return s.threads }

// Notices returns the dispatcher posting as this session's user
func (s *Session) Notices() interfaces.NotificationDispatcher { return s.notices }

// Sync returns the session's poller
func (s *Session) Sync() *messaging.MessageSync { return s.sync }

// Select opens threadID: fetches its history, remembers the choice and starts
// polling it. Any previous poll of this session is cancelled first.
func (s *Session) Select(ctx context.Context, threadID, doctorID string) ([]types.Message, error) {
	msgs, err := s.threads.GetMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	s.remember(ctx, KeyLastThreadID, threadID)
	if doctorID != "" {
		s.remember(ctx, KeyLastDoctorID, doctorID)
	}

	s.mu.Lock()
	s.poll = s.sync.StartPolling(threadID)
	s.mu.Unlock()

	return msgs, nil
}

// Unwatch stops polling the viewed thread. Calling it when nothing is watched is a no-op.
func (s *Session) Unwatch() {
	s.mu.Lock()
	h := s.poll
	s.poll = nil
	s.mu.Unlock()

	s.sync.StopPolling(h)
}

// Watching returns the thread currently polled
func (s *Session) Watching() (string, bool) {
	return s.sync.Active()
}

// Restore reopens the thread selected before a reload. It prefers the stored
// thread id and falls back to the thread with the stored doctor.
func (s *Session) Restore(ctx context.Context) (*Restored, error) {
	if _, err := s.threads.ListThreads(ctx); err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}

	threadID, _, err := s.store.Get(ctx, s.userID, KeyLastThreadID)
	if err != nil {
		return nil, err
	}
	doctorID, _, err := s.store.Get(ctx, s.userID, KeyLastDoctorID)
	if err != nil {
		return nil, err
	}

	var thread *types.Thread
	if threadID != "" {
		thread, _ = s.threads.Thread(threadID)
	}
	if thread == nil && doctorID != "" {
		thread, _ = s.threads.ThreadWith(doctorID)
	}
	if thread == nil {
		return &Restored{DoctorID: doctorID}, nil
	}

	msgs, err := s.Select(ctx, thread.ID, doctorID)
	if err != nil {
		return nil, err
	}
	return &Restored{Thread: thread, Messages: msgs, DoctorID: doctorID}, nil
}

// Forget clears the persisted selection
func (s *Session) Forget(ctx context.Context) error {
	for _, key := range []string{KeyLastThreadID, KeyLastDoctorID} {
		if err := s.store.Delete(ctx, s.userID, key); err != nil {
			return err
		}
	}
	return nil
}

// close tears the session down; no fetch happens after it returns
func (s *Session) close() {
	s.Unwatch()
	s.sync.Stop()
}

func (s *Session) remember(ctx context.Context, key, value string) {
	if err := s.store.Set(ctx, s.userID, key, value); err != nil {
		s.logger.WithUserID(s.userID).WithError(err).Warnf("Failed to persist %s", key)
	}
}
