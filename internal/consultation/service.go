package consultation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/teleconsult/internal/appointments"
	"github.com/medrex/teleconsult/internal/auth"
	"github.com/medrex/teleconsult/internal/meeting"
	"github.com/medrex/teleconsult/internal/messaging"
	"github.com/medrex/teleconsult/internal/session"
	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/database"
	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
)

const (
	serviceName    = "teleconsult"
	serviceVersion = "1.0.0"
)

// Dependencies are the collaborators a Service is assembled from
type Dependencies struct {
	Repository   interfaces.ConsultationRepository
	Provisioner  interfaces.MeetingProvisioner
	Messaging    interfaces.MessagingAPI
	Appointments interfaces.AppointmentAPI
	SessionStore interfaces.SessionStore
	Tokens       interfaces.TokenValidator
	Limiter      interfaces.RateLimiter
	Metrics      *monitoring.MetricsCollector
	Tracing      *monitoring.TracingManager
}

// Service is the consultation-and-messaging engine behind the frontend API
type Service struct {
	config   *config.Config
	logger   *logger.Logger
	db       *database.DB
	machine  *Machine
	booker   *Booker
	sessions *session.Manager
	store    interfaces.SessionStore
	auth     *auth.Middleware
	metrics  *monitoring.MetricsCollector
	tracing  *monitoring.TracingManager
	health   *monitoring.HealthManager
	server   *http.Server
	cancel   context.CancelFunc
}

// New connects to postgres and the session store and wires every upstream client
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelConnect()

	db, err := database.NewConnection(connectCtx, &cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.CreateSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	store, err := session.NewSQLiteStore(cfg.Session.StorePath, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		db.Close()
		store.Close()
		return nil, err
	}

	metrics := monitoring.NewMetricsCollector(serviceName)

	background, cancel := context.WithCancel(context.Background())

	var limiter interfaces.RateLimiter
	if cfg.RateLimit.Enabled {
		rl := auth.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		rl.SetMaxIdle(cfg.RateLimit.BucketIdle)
		rl.StartCleanup(background, cfg.RateLimit.CleanupInterval)
		limiter = rl
	}

	s := NewWithDependencies(cfg, log, Dependencies{
		Repository:   NewRepository(db, log),
		Provisioner:  meeting.NewClient(cfg.Meeting, log, metrics),
		Messaging:    messaging.NewClient(cfg.Messaging.BaseURL, cfg.Messaging.Timeout, log, metrics),
		Appointments: appointments.NewClient(cfg.Appointments.BaseURL, cfg.Appointments.Timeout, log, metrics),
		SessionStore: store,
		Tokens:       auth.NewTokenValidator(cfg.JWT.SecretKey, cfg.JWT.Issuer),
		Limiter:      limiter,
		Metrics:      metrics,
		Tracing:      tracing,
	})
	s.db = db
	s.cancel = cancel

	s.sessions.SetMaxIdle(cfg.Session.IdleTimeout)
	s.sessions.StartReaper(background, cfg.Session.ReapInterval)

	s.health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	s.health.RegisterChecker("session_store", monitoring.NewCustomHealthChecker(func(ctx context.Context) monitoring.HealthCheck {
		if err := store.Health(ctx); err != nil {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: err.Error()}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy}
	}))
	s.health.RegisterUpstream("messaging", monitoring.NewHTTPHealthChecker(cfg.Messaging.BaseURL, 5*time.Second))
	s.health.RegisterUpstream("meeting_provider", monitoring.NewHTTPHealthChecker(cfg.Meeting.BaseURL, 5*time.Second))

	return s, nil
}

// NewWithDependencies assembles a Service from already built collaborators
func NewWithDependencies(cfg *config.Config, log *logger.Logger, deps Dependencies) *Service {
	machine := NewMachine(deps.Repository, deps.Provisioner, log,
		WithTimeout(cfg.Consultation.TransitionTimeout),
		WithPaths(Paths{
			PatientPrefix: cfg.Consultation.PatientPathPrefix,
			DoctorPrefix:  cfg.Consultation.DoctorPathPrefix,
		}),
		WithObservability(deps.Metrics, deps.Tracing),
	)

	public := []string{cfg.Monitoring.HealthPath, cfg.Monitoring.MetricsPath}

	return &Service{
		config:   cfg,
		logger:   log,
		machine:  machine,
		booker:   NewBooker(machine, deps.Appointments, log),
		sessions: session.NewManager(deps.Messaging, deps.SessionStore, cfg.Messaging.PollInterval, log, deps.Metrics),
		store:    deps.SessionStore,
		auth:     auth.NewMiddleware(deps.Tokens, deps.Limiter, log, public...),
		metrics:  deps.Metrics,
		tracing:  deps.Tracing,
		health:   monitoring.NewHealthManager(serviceName, serviceVersion),
	}
}

// Machine returns the consultation state machine
func (s *Service) Machine() *Machine {
	return s.machine
}

// Sessions returns the session manager
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Handler returns the fully wired HTTP handler
func (s *Service) Handler() http.Handler {
	router := mux.NewRouter()
	s.setupRoutes(router)
	return router
}

// Start starts the HTTP server
func (s *Service) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.Infof("Starting Consultation Service on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains the HTTP server, stops every poll and closes the stores
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Consultation Service")

	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}

	s.sessions.CloseAll()
	if s.cancel != nil {
		s.cancel()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.tracing.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
