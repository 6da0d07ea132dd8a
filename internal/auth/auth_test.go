package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

const (
	testSecret = "test-secret"
	testIssuer = "medrex-api-gateway"
)

func issue(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(testSecret, testIssuer, &types.UserClaims{
		UserID: userID, Username: "jane", Name: "Jane Doe", Role: types.RolePatient,
	}, ttl)
	require.NoError(t, err)
	return token
}

func TestTokenValidator_ValidateJWT(t *testing.T) {
	tv := NewTokenValidator(testSecret, testIssuer)
	token := issue(t, "pat-1", time.Hour)

	claims, err := tv.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "pat-1", claims.UserID)
	assert.Equal(t, types.RolePatient, claims.Role)
	assert.Equal(t, "Jane Doe", claims.Name)
	assert.Equal(t, token, claims.Token)
}

func TestTokenValidator_Rejects(t *testing.T) {
	tv := NewTokenValidator(testSecret, testIssuer)

	_, err := tv.ValidateJWT(issue(t, "pat-1", -time.Minute))
	assert.Equal(t, types.ErrorTypeAuthentication, types.TypeOf(err))

	_, err = NewTokenValidator("other", testIssuer).ValidateJWT(issue(t, "pat-1", time.Hour))
	assert.Error(t, err)

	_, err = NewTokenValidator(testSecret, "someone-else").ValidateJWT(issue(t, "pat-1", time.Hour))
	assert.Error(t, err)

	_, err = tv.ValidateJWT("not-a-token")
	assert.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow("u1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, _ := rl.Allow("u1")
	assert.False(t, allowed)

	allowed, _ = rl.Allow("u2")
	assert.True(t, allowed)

	require.NoError(t, rl.Reset("u1"))
	allowed, _ = rl.Allow("u1")
	assert.True(t, allowed)
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	rl.SetMaxIdle(time.Hour)

	_, _ = rl.Allow("idle")
	clock = clock.Add(50 * time.Minute)
	_, _ = rl.Allow("active")
	require.Equal(t, 2, rl.Len())

	clock = clock.Add(20 * time.Minute)
	assert.Equal(t, 1, rl.cleanup())
	assert.Equal(t, 1, rl.Len())

	// a returning user starts with a full bucket
	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("idle")
		assert.True(t, allowed)
	}
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.SetMaxIdle(time.Millisecond)
	_, _ = rl.Allow("u1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl.StartCleanup(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return rl.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMiddleware_Authenticate(t *testing.T) {
	m := NewMiddleware(NewTokenValidator(testSecret, testIssuer), nil, logger.Discard(), "/health")

	var seen *types.UserClaims
	h := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, "pat-1", time.Hour))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "pat-1", seen.UserID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
	req.Header.Set("Authorization", "Token abc")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware_RateLimitOnlyWrites(t *testing.T) {
	m := NewMiddleware(NewTokenValidator(testSecret, testIssuer), NewRateLimiter(1, 1), logger.Discard())
	h := m.Authenticate(m.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	token := issue(t, "pat-1", time.Hour)

	do := func(method string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/api/v1/threads/send/doc-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost))
	assert.Equal(t, http.StatusOK, do(http.MethodGet))
}
