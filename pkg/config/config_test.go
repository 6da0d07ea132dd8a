package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFrom_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret_key: frontend-secret
meeting:
  api_key: key-1
  api_secret: secret-1
messaging:
  base_url: http://chat.local/api
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "frontend-secret", cfg.JWT.SecretKey)
	assert.Equal(t, "http://chat.local/api", cfg.Messaging.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Messaging.PollInterval)
	assert.Equal(t, 20*time.Second, cfg.Consultation.TransitionTimeout)
	assert.Equal(t, "/consultation", cfg.Consultation.PatientPathPrefix)
	assert.Equal(t, "/doctor/consultation", cfg.Consultation.DoctorPathPrefix)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.RateLimit.BucketIdle)
	assert.Equal(t, time.Hour, cfg.RateLimit.CleanupInterval)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.ReapInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFrom_MissingSecrets(t *testing.T) {
	path := writeConfig(t, `
meeting:
  api_key: key-1
  api_secret: secret-1
`)

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret key is required")
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret_key: frontend-secret
meeting:
  api_key: key-1
  api_secret: secret-1
`)
	t.Setenv("PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VIDEOSDK_API_KEY", "env-key")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "env-key", cfg.Meeting.APIKey)
}

func TestValidate_PollInterval(t *testing.T) {
	cfg := &Config{
		Server:       ServerConfig{Port: 8085},
		JWT:          JWTConfig{SecretKey: "s"},
		Meeting:      MeetingConfig{APIKey: "k", APISecret: "s"},
		Messaging:    MessagingConfig{BaseURL: "http://x"},
		Consultation: ConsultationConfig{TransitionTimeout: time.Second},
	}
	assert.Error(t, validate(cfg))

	cfg.Messaging.PollInterval = time.Second
	assert.NoError(t, validate(cfg))
}
