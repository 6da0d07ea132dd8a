package meeting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.MeetingConfig{
		BaseURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   time.Second,
	}, logger.Discard(), nil).(*Client)
}

func TestClient_CreateMeeting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "raw-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"roomId":"abcd-efgh-ijkl"}`))
	})

	id, err := c.CreateMeeting(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.Equal(t, "abcd-efgh-ijkl", id)
}

func TestClient_CreateMeetingFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.CreateMeeting(context.Background(), "raw-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProvisioning))
}

func TestClient_CreateMeetingEmptyRoom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.CreateMeeting(context.Background(), "raw-token")
	assert.True(t, errors.Is(err, types.ErrProvisioning))
}

func TestClient_ValidateMeeting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms/live":
			_, _ = w.Write([]byte(`{"roomId":"live","disabled":false}`))
		case "/rooms/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	v, err := c.ValidateMeeting(context.Background(), "tok", "live")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "live", v.Metadata["roomId"])

	v, err = c.ValidateMeeting(context.Background(), "tok", "gone")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	_, err = c.ValidateMeeting(context.Background(), "tok", "broken")
	assert.Equal(t, types.ErrorTypeNetwork, types.TypeOf(err))

	v, err = c.ValidateMeeting(context.Background(), "tok", "")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}
