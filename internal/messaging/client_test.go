package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, logger.Discard(), nil).(*Client)
}

func TestClient_SendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/send/doc-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])

		_, _ = w.Write([]byte(`{"status":true,"data":{"id":"m1","threadId":"t1","senderId":"pat-1","message":"hello","createdAt":"2026-01-02T10:00:00Z"}}`))
	})

	msg, err := c.SendMessage(context.Background(), "tok", "doc-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.True(t, msg.Persisted)
}

func TestClient_RejectedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"recipient blocked"}`))
	})

	_, err := c.SendMessage(context.Background(), "tok", "doc-1", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetwork))
	assert.Contains(t, err.Error(), "recipient blocked")
}

func TestClient_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.ListThreads(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, types.ErrorTypeNetwork, types.TypeOf(err))
}

func TestClient_GetMessagesFillsThreadID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/messages/t1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","data":[{"id":"a","senderId":"u","message":"x","createdAt":"2026-01-02T10:00:00Z"}]}`))
	})

	msgs, err := c.GetMessages(context.Background(), "tok", "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "t1", msgs[0].ThreadID)
	assert.True(t, msgs[0].Persisted)
}

func TestClient_ListThreads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/threads", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"data":[{"id":"t1","participants":[{"userId":"p","role":"patient"},{"userId":"d","role":"doctor"}],"lastActivity":"2026-01-02T10:00:00Z"}]}`))
	})

	threads, err := c.ListThreads(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.True(t, threads[0].WellFormed())
}
