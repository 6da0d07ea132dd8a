package appointments

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

const upstreamName = "appointments"

// Client is a pass-through to the appointment API. Double booking is the
// endpoint's concern; nothing is checked here beyond input shape.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
}

// NewClient creates an appointment API client
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger, metrics *monitoring.MetricsCollector) interfaces.AppointmentAPI {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		metrics:    metrics,
	}
}

// CheckAvailability lists the slots of doctorID on date (YYYY-MM-DD)
func (c *Client) CheckAvailability(ctx context.Context, authToken, doctorID, date string) ([]types.Slot, error) {
	if doctorID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "doctor id is required", nil)
	}
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "date must be YYYY-MM-DD", map[string]interface{}{"date": date})
	}

	path := fmt.Sprintf("/appointments/doctors/%s/slots?date=%s", url.PathEscape(doctorID), url.QueryEscape(date))
	var slots []types.Slot
	if err := c.do(ctx, "check_availability", http.MethodGet, path, authToken, nil, &slots); err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].DoctorID == "" {
			slots[i].DoctorID = doctorID
		}
	}
	return slots, nil
}

// Book forwards req to the booking endpoint
func (c *Client) Book(ctx context.Context, authToken string, req *types.BookingRequest) (*types.Booking, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal booking: %w", err)
	}

	var booking types.Booking
	if err := c.do(ctx, "book", http.MethodPost, "/appointments/book", authToken, body, &booking); err != nil {
		return nil, err
	}

	c.logger.WithComponent("appointments").WithFields(map[string]interface{}{
		"booking_id": booking.ID,
		"doctor_id":  req.DoctorID,
	}).Info("Appointment booked")
	return &booking, nil
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

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.NewNetworkError(operation, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusConflict {
		return &types.MedrexError{
			Type:    types.ErrorTypeStateConflict,
			Code:    types.ErrCodeStateConflict,
			Message: "slot is no longer available",
			Cause:   fmt.Errorf("%s", strings.TrimSpace(string(raw))),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewNetworkError(operation, fmt.Errorf("appointment API returned %d: %s", resp.StatusCode, truncate(raw)))
	}

	if err := decode(raw, out); err != nil {
		return types.NewNetworkError(operation, err)
	}
	return nil
}

// decode accepts both a bare payload and the {status, data} envelope
func decode(raw []byte, out interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 {
			trimmed = env.Data
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
