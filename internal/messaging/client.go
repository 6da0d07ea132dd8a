package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

const upstreamName = "messaging"

// envelope is the {status, data} wrapper every chat endpoint answers with
type envelope[T any] struct {
	Status  interface{} `json:"status"`
	Data    T           `json:"data"`
	Message string      `json:"message,omitempty"`
}

// rejected reports an explicit negative status in a 2xx answer
func (e *envelope[T]) rejected() bool {
	switch v := e.Status.(type) {
	case bool:
		return !v
	case string:
		switch strings.ToLower(v) {
		case "false", "error", "fail", "failed":
			return true
		}
	}
	return false
}

func (e *envelope[T]) err(operation string) error {
	if !e.rejected() {
		return nil
	}
	return types.NewNetworkError(operation, fmt.Errorf("messaging API rejected request: %s", e.Message))
}

// Client talks to the upstream chat API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
}

// NewClient creates a messaging API client
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger, metrics *monitoring.MetricsCollector) interfaces.MessagingAPI {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		metrics:    metrics,
	}
}

// SendMessage posts content to recipientID: POST /chat/send/{receiverId}
func (c *Client) SendMessage(ctx context.Context, authToken, recipientID, content string) (*types.Message, error) {
	body, err := json.Marshal(map[string]string{"message": content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	var env envelope[*types.Message]
	path := "/chat/send/" + url.PathEscape(recipientID)
	if err := c.do(ctx, "send_message", http.MethodPost, path, authToken, body, &env); err != nil {
		return nil, err
	}
	if err := env.err("send_message"); err != nil {
		return nil, err
	}
	if env.Data != nil {
		env.Data.Persisted = true
	}
	return env.Data, nil
}

// ListThreads fetches every thread visible to the token holder: GET /chat/threads
func (c *Client) ListThreads(ctx context.Context, authToken string) ([]*types.Thread, error) {
	var env envelope[[]*types.Thread]
	if err := c.do(ctx, "list_threads", http.MethodGet, "/chat/threads", authToken, nil, &env); err != nil {
		return nil, err
	}
	if err := env.err("list_threads"); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetMessages fetches the history of a thread: GET /chat/messages/{threadId}
func (c *Client) GetMessages(ctx context.Context, authToken, threadID string) ([]types.Message, error) {
	var env envelope[[]types.Message]
	path := "/chat/messages/" + url.PathEscape(threadID)
	if err := c.do(ctx, "get_messages", http.MethodGet, path, authToken, nil, &env); err != nil {
		return nil, err
	}
	if err := env.err("get_messages"); err != nil {
		return nil, err
	}
	for i := range env.Data {
		env.Data[i].Persisted = true
		if env.Data[i].ThreadID == "" {
			env.Data[i].ThreadID = threadID
		}
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, operation, method, path, authToken string, body []byte, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.RecordRemoteCall(upstreamName, operation, err, elapsed)
		c.logger.RemoteCall(ctx, upstreamName, operation, elapsed.Milliseconds(), err)
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return types.NewNetworkError(operation, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewNetworkError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewNetworkError(operation, fmt.Errorf("messaging API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewNetworkError(operation, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
