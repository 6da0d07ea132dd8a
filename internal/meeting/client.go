package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

const upstreamName = "meeting_provider"

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// Client provisions and validates rooms at the meeting provider
type Client struct {
	*TokenIssuer

	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
}

// NewClient creates a meeting provider client from its config section
func NewClient(cfg config.MeetingConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) interfaces.MeetingProvisioner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		TokenIssuer: NewTokenIssuer(cfg.APIKey, cfg.APISecret, cfg.TokenTTL),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log,
		metrics:     metrics,
	}
}

// CreateMeeting creates a new room and returns its id. It is not retried.
func (c *Client) CreateMeeting(ctx context.Context, token string) (roomID string, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "create_meeting", start, err) }()

	req, err := c.newRequest(ctx, http.MethodPost, "/rooms", token)
	if err != nil {
		return "", types.NewProvisioningError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", types.NewProvisioningError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", types.NewProvisioningError(statusError(resp))
	}

	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewProvisioningError(fmt.Errorf("failed to decode room: %w", err))
	}
	if out.RoomID == "" {
		return "", types.NewProvisioningError(fmt.Errorf("provider returned an empty room id"))
	}

	c.logger.WithComponent("meeting").WithField("room_id", out.RoomID).Info("Meeting room created")
	return out.RoomID, nil
}

// ValidateMeeting reports whether meetingID still exists. A 404 is a normal
// invalid answer, anything else non-2xx is an error.
func (c *Client) ValidateMeeting(ctx context.Context, token, meetingID string) (v *types.MeetingValidation, err error) {
	start := time.Now()
	defer func() { c.observe(ctx, "validate_meeting", start, err) }()

	if meetingID == "" {
		return &types.MeetingValidation{Valid: false}, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(meetingID), token)
	if err != nil {
		return nil, types.NewNetworkError("validate_meeting", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewNetworkError("validate_meeting", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &types.MeetingValidation{Valid: false}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, types.NewNetworkError("validate_meeting", statusError(resp))
	}

	metadata := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil && err != io.EOF {
		return nil, types.NewNetworkError("validate_meeting", fmt.Errorf("failed to decode room: %w", err))
	}
	return &types.MeetingValidation{Valid: true, Metadata: metadata}, nil
}

// newRequest sets the provider token as the raw Authorization value, without a Bearer prefix
func (c *Client) newRequest(ctx context.Context, method, path, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) observe(ctx context.Context, operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	c.metrics.RecordRemoteCall(upstreamName, operation, err, elapsed)
	c.logger.RemoteCall(ctx, upstreamName, operation, elapsed.Milliseconds(), err)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("meeting provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
