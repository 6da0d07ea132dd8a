package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration (consultation request history)
	Database DatabaseConfig `mapstructure:"database"`

	// Upstream messaging API
	Messaging MessagingConfig `mapstructure:"messaging"`

	// External meeting provider
	Meeting MeetingConfig `mapstructure:"meeting"`

	// Appointment API
	Appointments AppointmentsConfig `mapstructure:"appointments"`

	// Consultation state machine
	Consultation ConsultationConfig `mapstructure:"consultation"`

	// Persisted client session state
	Session SessionConfig `mapstructure:"session"`

	// Frontend JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// MessagingConfig holds the chat API endpoint
type MessagingConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MeetingConfig holds meeting provider credentials
type MeetingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AppointmentsConfig holds the appointment API endpoint
type AppointmentsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConsultationConfig bounds the confirm/cancel critical path
type ConsultationConfig struct {
	TransitionTimeout time.Duration `mapstructure:"transition_timeout"`
	PatientPathPrefix string        `mapstructure:"patient_path_prefix"`
	DoctorPathPrefix  string        `mapstructure:"doctor_path_prefix"`
}

// SessionConfig holds the local session store location and idle session reaping
type SessionConfig struct {
	StorePath    string        `mapstructure:"store_path"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RequestsPerMin  int           `mapstructure:"requests_per_min"`
	BurstSize       int           `mapstructure:"burst_size"`
	BucketIdle      time.Duration `mapstructure:"bucket_idle"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from file when set, else from the default search paths
func LoadFrom(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/teleconsult")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "teleconsult")
	v.SetDefault("database.user", "teleconsult")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("messaging.base_url", "http://localhost:5000/api")
	v.SetDefault("messaging.timeout", "10s")
	v.SetDefault("messaging.poll_interval", "5s")

	v.SetDefault("meeting.base_url", "https://api.videosdk.live/v2")
	v.SetDefault("meeting.token_ttl", "2h")
	v.SetDefault("meeting.timeout", "10s")

	v.SetDefault("appointments.base_url", "http://localhost:5000/api")
	v.SetDefault("appointments.timeout", "10s")

	v.SetDefault("consultation.transition_timeout", "20s")
	v.SetDefault("consultation.patient_path_prefix", "/consultation")
	v.SetDefault("consultation.doctor_path_prefix", "/doctor/consultation")

	v.SetDefault("session.store_path", "teleconsult-session.db")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.reap_interval", "1m")

	v.SetDefault("jwt.issuer", "medrex-api-gateway")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_min", 120)
	v.SetDefault("rate_limit.burst_size", 20)
	v.SetDefault("rate_limit.bucket_idle", "24h")
	v.SetDefault("rate_limit.cleanup_interval", "1h")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if key := os.Getenv("VIDEOSDK_API_KEY"); key != "" {
		config.Meeting.APIKey = key
	}

	if secret := os.Getenv("VIDEOSDK_SECRET_KEY"); secret != "" {
		config.Meeting.APISecret = secret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if config.Meeting.APIKey == "" || config.Meeting.APISecret == "" {
		return fmt.Errorf("meeting provider api key and secret are required")
	}

	if config.Messaging.BaseURL == "" {
		return fmt.Errorf("messaging base url is required")
	}

	if config.Messaging.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", config.Messaging.PollInterval)
	}

	if config.Consultation.TransitionTimeout <= 0 {
		return fmt.Errorf("invalid transition timeout: %s", config.Consultation.TransitionTimeout)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	return nil
}
