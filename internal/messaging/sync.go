package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

// DefaultPollInterval is the re-fetch period of the active thread
const DefaultPollInterval = 5 * time.Second

// MessageRefresher performs a silent refresh of one thread
type MessageRefresher interface {
	RefreshMessages(ctx context.Context, threadID string) ([]types.Message, error)
}

// PollHandle identifies one running poll. It is returned by StartPolling and
// passed back to StopPolling.
type PollHandle struct {
	threadID string
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	onStop   func()
}

// ThreadID returns the thread this poll refreshes
func (h *PollHandle) ThreadID() string {
	return h.threadID
}

// Done is closed once the poll goroutine has exited
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// stop cancels the poll and waits for its goroutine, so no fetch starts after it returns
func (h *PollHandle) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
		if h.onStop != nil {
			h.onStop()
		}
	})
}

// MessageSync keeps the viewed thread current by periodic re-fetch.
// At most one poll is active per session.
type MessageSync struct {
	store    MessageRefresher
	interval time.Duration
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector

	mu     sync.Mutex
	active *PollHandle
}

// NewMessageSync creates a poller over store
func NewMessageSync(store MessageRefresher, interval time.Duration, log *logger.Logger, metrics *monitoring.MetricsCollector) *MessageSync {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &MessageSync{
		store:    store,
		interval: interval,
		logger:   log,
		metrics:  metrics,
	}
}

// StartPolling cancels any active poll and starts refreshing threadID every interval
func (s *MessageSync) StartPolling(threadID string) *PollHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.stop()
		s.active = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &PollHandle{
		threadID: threadID,
		cancel:   cancel,
		done:     make(chan struct{}),
		onStop:   s.metrics.PollStopped,
	}
	s.active = h
	s.metrics.PollStarted()

	go s.run(ctx, h)

	s.logger.WithThread("message_sync", threadID).Debug("Polling started")
	return h
}

// StopPolling cancels h. It is safe to call with nil or with an already stopped handle.
func (s *MessageSync) StopPolling(h *PollHandle) {
	if h == nil {
		return
	}

	h.stop()

	s.mu.Lock()
	if s.active == h {
		s.active = nil
	}
	s.mu.Unlock()
}

// Stop cancels whatever poll is active; used on session teardown
func (s *MessageSync) Stop() {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()

	s.StopPolling(h)
}

// Active returns the thread currently being polled
func (s *MessageSync) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return "", false
	}
	return s.active.threadID, true
}

// Interval returns the poll period
func (s *MessageSync) Interval() time.Duration {
	return s.interval
}

func (s *MessageSync) run(ctx context.Context, h *PollHandle) {
	defer close(h.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, h.threadID)
		}
	}
}

// tick refreshes once. Failures are logged and counted, never propagated; the next tick retries.
func (s *MessageSync) tick(ctx context.Context, threadID string) {
	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	_, err := s.store.RefreshMessages(tickCtx, threadID)
	if err == nil {
		s.metrics.RecordPollTick(true)
		return
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}

	s.metrics.RecordPollTick(false)
	s.logger.WithThread("message_sync", threadID).WithError(err).Warn("Background message refresh failed")
}
