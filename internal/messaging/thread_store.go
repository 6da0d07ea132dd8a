package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

// ThreadStore owns the thread list and per-thread messages of one client session.
// All mutation goes through its methods. Between a poll tick and a user action the
// last completed fetch wins; the mutex only keeps memory access safe.
type ThreadStore struct {
	userID    string
	authToken string
	api       interfaces.MessagingAPI
	logger    *logger.Logger

	mu       sync.RWMutex
	threads  []*types.Thread
	messages map[string][]types.Message
	loading  map[string]bool
	// epoch moves on every invalidation; a fetch begun under an older epoch is not cached
	epoch uint64
}

// NewThreadStore creates the store for one authenticated identity
func NewThreadStore(userID, authToken string, api interfaces.MessagingAPI, log *logger.Logger) *ThreadStore {
	return &ThreadStore{
		userID:    userID,
		authToken: authToken,
		api:       api,
		logger:    log,
		messages:  make(map[string][]types.Message),
		loading:   make(map[string]bool),
	}
}

// UserID returns the identity this store fetches for
func (s *ThreadStore) UserID() string {
	return s.userID
}

// ListThreads refreshes the thread list, most recent activity first.
// On failure the previous list is kept.
func (s *ThreadStore) ListThreads(ctx context.Context) ([]*types.Thread, error) {
	threads, err := s.api.ListThreads(ctx, s.authToken)
	if err != nil {
		return nil, err
	}

	threads = lo.Filter(threads, func(t *types.Thread, _ int) bool { return t != nil })
	for _, t := range threads {
		if !t.WellFormed() {
			s.logger.WithThread("thread_store", t.ID).Warnf("Thread has %d participants, expected one patient and one doctor", len(t.Participants))
		}
	}
	s.mu.Lock()
	s.threads = threads
	s.sortThreads()
	s.mu.Unlock()

	return s.Threads(), nil
}

// GetMessages fetches a thread's history and replaces the in-memory copy.
// On failure the stored messages are left untouched.
func (s *ThreadStore) GetMessages(ctx context.Context, threadID string) ([]types.Message, error) {
	return s.fetchMessages(ctx, threadID, false)
}

// RefreshMessages is GetMessages without flipping the loading indicator; used by MessageSync.
func (s *ThreadStore) RefreshMessages(ctx context.Context, threadID string) ([]types.Message, error) {
	return s.fetchMessages(ctx, threadID, true)
}

func (s *ThreadStore) fetchMessages(ctx context.Context, threadID string, silent bool) ([]types.Message, error) {
	if threadID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "thread id is required", nil)
	}

	if !silent {
		s.setLoading(threadID, true)
		defer s.setLoading(threadID, false)
	}

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	msgs, err := s.api.GetMessages(ctx, s.authToken, threadID)
	if err != nil {
		return nil, err
	}

	sorted := append([]types.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return append([]types.Message(nil), sorted...), nil
	}
	s.messages[threadID] = sorted
	if n := len(sorted); n > 0 {
		if t, ok := lo.Find(s.threads, func(t *types.Thread) bool { return t.ID == threadID }); ok {
			if last := sorted[n-1].Timestamp; last.After(t.LastActivity) {
				t.LastActivity = last
				s.sortThreads()
			}
		}
	}
	s.mu.Unlock()

	return append([]types.Message(nil), sorted...), nil
}

// SendMessage posts content to recipientID and then refreshes the thread list so a
// newly created thread shows up. Nothing is inserted locally before the upstream accepts it;
// the stored messages of the recipient's thread are dropped so the next read fetches them.
func (s *ThreadStore) SendMessage(ctx context.Context, recipientID, content string) (*types.Message, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "recipient id is required", nil)
	}
	if strings.TrimSpace(content) == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "message content is required", nil)
	}

	msg, err := s.api.SendMessage(ctx, s.authToken, recipientID, content)
	if err != nil {
		return nil, err
	}

	if _, err := s.ListThreads(ctx); err != nil {
		s.logger.WithUserID(s.userID).WithError(err).Warn("Thread list refresh after send failed")
	}
	if msg != nil && msg.ThreadID != "" {
		s.invalidate(msg.ThreadID)
	} else {
		s.InvalidateWith(recipientID)
	}

	return msg, nil
}

// InvalidateWith drops the stored messages of the thread shared with userID, or
// of every thread when that thread is not known yet. Used after something was
// posted to userID outside SendMessage.
func (s *ThreadStore) InvalidateWith(userID string) {
	if t, ok := s.ThreadWith(userID); ok {
		s.invalidate(t.ID)
		return
	}

	s.mu.Lock()
	s.messages = make(map[string][]types.Message)
	s.epoch++
	s.mu.Unlock()
}

func (s *ThreadStore) invalidate(threadID string) {
	s.mu.Lock()
	delete(s.messages, threadID)
	s.epoch++
	s.mu.Unlock()
}

// Threads returns a snapshot of the thread list
func (s *ThreadStore) Threads() []*types.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.threads, func(t *types.Thread, _ int) *types.Thread {
		c := *t
		c.Participants = append([]types.Participant(nil), t.Participants...)
		c.Messages = nil
		return &c
	})
}

// Messages returns a snapshot of the stored messages of threadID
func (s *ThreadStore) Messages(threadID string) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Message(nil), s.messages[threadID]...)
}

// CachedMessages returns the stored messages of threadID and whether any fetch
// of that thread has completed yet
func (s *ThreadStore) CachedMessages(threadID string) ([]types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[threadID]
	if !ok {
		return nil, false
	}
	return append([]types.Message(nil), msgs...), true
}

// Thread returns the stored thread with id threadID
func (s *ThreadStore) Thread(threadID string) (*types.Thread, bool) {
	for _, t := range s.Threads() {
		if t.ID == threadID {
			return t, true
		}
	}
	return nil, false
}

// ThreadWith returns the stored thread whose counterpart is userID
func (s *ThreadStore) ThreadWith(userID string) (*types.Thread, bool) {
	return lo.Find(s.Threads(), func(t *types.Thread) bool {
		p, ok := t.Counterpart(s.userID)
		return ok && p.UserID == userID
	})
}

// Loading reports whether a foreground fetch for threadID is in flight
func (s *ThreadStore) Loading(threadID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[threadID]
}

// sortThreads orders the list by most recent activity; callers hold mu
func (s *ThreadStore) sortThreads() {
	sort.SliceStable(s.threads, func(i, j int) bool {
		return s.threads[i].LastActivity.After(s.threads[j].LastActivity)
	})
}

func (s *ThreadStore) setLoading(threadID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v {
		s.loading[threadID] = true
	} else {
		delete(s.loading, threadID)
	}
}
