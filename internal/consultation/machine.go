package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

// DefaultTransitionTimeout bounds a confirm, cancel or join from start to finish
const DefaultTransitionTimeout = 20 * time.Second

// ThreadRefresher reloads the acting user's thread list and forgets stored
// messages of threads a notice was posted into
type ThreadRefresher interface {
	ListThreads(ctx context.Context) ([]*types.Thread, error)
	InvalidateWith(userID string)
}

// Scope is the acting user and the session collaborators an operation reports through
type Scope struct {
	Actor   types.Actor
	Threads ThreadRefresher
	Notices interfaces.NotificationDispatcher
}

// Machine drives consultation requests through pending, confirmed and cancelled
type Machine struct {
	repo        interfaces.ConsultationRepository
	provisioner interfaces.MeetingProvisioner
	paths       Paths
	timeout     time.Duration
	validate    *validator.Validate
	logger      *logger.Logger
	metrics     *monitoring.MetricsCollector
	tracing     *monitoring.TracingManager
	now         func() time.Time
}

// MachineOption customizes a Machine
type MachineOption func(*Machine)

// WithPaths sets the join path prefixes
func WithPaths(p Paths) MachineOption {
	return func(m *Machine) { m.paths = p }
}

// WithTimeout bounds each transition
func WithTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithObservability attaches metrics and tracing
func WithObservability(metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) MachineOption {
	return func(m *Machine) {
		m.metrics = metrics
		m.tracing = tracing
	}
}

// NewMachine creates a consultation state machine
func NewMachine(repo interfaces.ConsultationRepository, provisioner interfaces.MeetingProvisioner, log *logger.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		repo:        repo,
		provisioner: provisioner,
		paths:       DefaultPaths(),
		timeout:     DefaultTransitionTimeout,
		validate:    validator.New(),
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Paths returns the join path builder
func (m *Machine) Paths() Paths {
	return m.paths
}

// Create records a patient's ask for a video consultation as pending and lets
// the doctor know. A failed notice does not undo the request.
func (m *Machine) Create(ctx context.Context, scope Scope, in *types.CreateConsultationRequest) (*types.ConsultationRequest, error) {
	ctx, span := m.tracing.StartSpan(ctx, "consultation.create")
	defer span.End()

	if in == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "request body is required", nil)
	}
	if err := m.validate.Struct(in); err != nil {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "invalid consultation request", map[string]interface{}{"error": err.Error()})
	}
	if scope.Actor.Role == types.RolePatient && scope.Actor.UserID != in.PatientID {
		return nil, types.NewAuthorizationError("patients can only request consultations for themselves")
	}

	doctor, ok := types.AsResolved(ResolveDoctorIdentity("", in.Doctor))
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "doctor identity is required", nil)
	}

	now := m.now()
	patient := in.Patient
	if patient.ID == "" {
		patient.ID = in.PatientID
	}
	req := &types.ConsultationRequest{
		ID:        uuid.New().String(),
		PatientID: in.PatientID,
		DoctorID:  doctor.ID,
		Doctor:    in.Doctor,
		Patient:   patient,
		Status:    types.ConsultationPending,
		Reason:    in.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("consultation.id", req.ID))

	if err := m.repo.Create(ctx, req); err != nil {
		m.tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to create consultation request: %w", err)
	}
	m.metrics.RecordTransition("create", "success")
	m.logger.Audit(scope.Actor.UserID, "consultation.create", req.ID, true, map[string]interface{}{"doctor_id": doctor.ID})

	if scope.Notices != nil {
		notice := types.Notice{
			Kind:        types.NoticeConsultationRequested,
			RecipientID: doctor.ID,
			RequestID:   req.ID,
			From:        firstNonEmpty(patient.Name, scope.Actor.Name),
		}
		err := scope.Notices.Dispatch(ctx, notice)
		m.invalidate(scope, notice.RecipientID)
		if err != nil {
			m.logger.WithConsultation(req.ID).WithError(err).Warn("Failed to notify doctor of new request")
			// Don't fail the request if notification fails
		}
	}

	return req, nil
}

// Get returns a request the actor takes part in
func (m *Machine) Get(ctx context.Context, actor types.Actor, id string) (*types.ConsultationRequest, error) {
	req, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeParticipant(actor, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListForPatient lists the requests of patientID, newest first
func (m *Machine) ListForPatient(ctx context.Context, actor types.Actor, patientID string, filters types.ConsultationFilters) ([]*types.ConsultationRequest, error) {
	if actor.Role == types.RolePatient && actor.UserID != patientID {
		return nil, types.NewAuthorizationError("patients can only list their own consultations")
	}
	filters.PatientID = patientID
	filters.DoctorID = ""
	return m.repo.List(ctx, &filters)
}

// ListForDoctor lists the requests addressed to doctorID, newest first
func (m *Machine) ListForDoctor(ctx context.Context, actor types.Actor, doctorID string, filters types.ConsultationFilters) ([]*types.ConsultationRequest, error) {
	if actor.Role == types.RoleDoctor && actor.UserID != doctorID {
		return nil, types.NewAuthorizationError("doctors can only list their own consultations")
	}
	if actor.Role == types.RolePatient {
		return nil, types.NewAuthorizationError("patients cannot list doctor consultations")
	}
	filters.DoctorID = doctorID
	filters.PatientID = ""
	return m.repo.List(ctx, &filters)
}

// Confirm provisions a meeting, moves the request to confirmed and notifies
// both sides. Nothing is mutated and no notice is sent unless the meeting is
// created. Notice failures are reported in the result, never rolled back.
func (m *Machine) Confirm(ctx context.Context, scope Scope, requestID string) (*types.ConfirmResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ctx, span := m.tracing.StartSpan(ctx, "consultation.confirm", attribute.String("consultation.id", requestID))
	defer span.End()

	req, err := m.pendingRequest(ctx, scope.Actor, requestID, "confirm")
	if err != nil {
		m.tracing.RecordError(span, err)
		return nil, err
	}

	identity := resolveRequestDoctor(req)
	doctor, resolved := types.AsResolved(identity)
	// the meeting token is issued to whoever provisions; only a doctor fills the missing doctor id
	host := doctor
	if !resolved {
		host = types.ResolvedIdentity{ID: scope.Actor.UserID, DisplayName: scope.Actor.Name}
		if scope.Actor.Role == types.RoleDoctor {
			doctor = host
		}
		m.logger.WithConsultation(req.ID).WithField("role", scope.Actor.Role).Warn("Doctor identity unresolved, provisioning with acting user")
	}

	meetingID, err := m.provision(ctx, host)
	if err != nil {
		m.metrics.RecordTransition("confirm", "provisioning_failed")
		m.logger.Audit(scope.Actor.UserID, "consultation.confirm", req.ID, false, map[string]interface{}{"error": err.Error()})
		m.tracing.RecordError(span, err)
		return nil, err
	}

	if req.DoctorID == "" && doctor.ID != "" {
		req.DoctorID = doctor.ID
	}
	if err := req.Confirm(meetingID, m.now()); err != nil {
		return nil, err
	}
	if err := m.repo.Transition(ctx, req); err != nil {
		m.recordTransitionError("confirm", err)
		m.logger.WithConsultation(req.ID).WithError(err).Warnf("Meeting %s abandoned, transition not persisted", meetingID)
		m.tracing.RecordError(span, err)
		return nil, err
	}
	m.metrics.RecordTransition("confirm", "success")
	m.logger.Audit(scope.Actor.UserID, "consultation.confirm", req.ID, true, map[string]interface{}{"meeting_id": meetingID})

	result := &types.ConfirmResult{
		Request:     req,
		MeetingID:   meetingID,
		PatientPath: m.paths.PatientJoinPath(meetingID, req.DoctorID),
		DoctorPath:  m.paths.DoctorJoinPath(meetingID, req.PatientID),
	}

	m.notify(ctx, scope, req, &result.NotifyErrors, types.Notice{
		Kind:        types.NoticeConsultationConfirmed,
		RecipientID: req.PatientID,
		RequestID:   req.ID,
		MeetingID:   meetingID,
		JoinPath:    result.PatientPath,
		From:        firstNonEmpty(doctor.DisplayName, scope.Actor.Name),
	})
	if resolved {
		m.notify(ctx, scope, req, &result.NotifyErrors, types.Notice{
			Kind:        types.NoticeConsultationConfirmed,
			RecipientID: doctorNoticeRecipient(scope.Actor, req, doctor),
			RequestID:   req.ID,
			MeetingID:   meetingID,
			JoinPath:    result.DoctorPath,
			From:        firstNonEmpty(doctor.DisplayName, scope.Actor.Name),
		})
	}

	m.refresh(ctx, scope, req.ID)
	return result, nil
}

// Cancel declines a pending request and tells the patient. No meeting is provisioned.
func (m *Machine) Cancel(ctx context.Context, scope Scope, requestID string) (*types.ConsultationRequest, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ctx, span := m.tracing.StartSpan(ctx, "consultation.cancel", attribute.String("consultation.id", requestID))
	defer span.End()

	req, err := m.pendingRequest(ctx, scope.Actor, requestID, "cancel")
	if err != nil {
		m.tracing.RecordError(span, err)
		return nil, nil, err
	}

	if err := req.Cancel(m.now()); err != nil {
		return nil, nil, err
	}
	if err := m.repo.Transition(ctx, req); err != nil {
		m.recordTransitionError("cancel", err)
		m.tracing.RecordError(span, err)
		return nil, nil, err
	}
	m.metrics.RecordTransition("cancel", "success")
	m.logger.Audit(scope.Actor.UserID, "consultation.cancel", req.ID, true, nil)

	var notifyErrors []string
	from := scope.Actor.Name
	if doctor, ok := types.AsResolved(resolveRequestDoctor(req)); ok && doctor.DisplayName != "" {
		from = doctor.DisplayName
	}
	m.notify(ctx, scope, req, &notifyErrors, types.Notice{
		Kind:        types.NoticeConsultationDeclined,
		RecipientID: req.PatientID,
		RequestID:   req.ID,
		From:        from,
	})

	m.refresh(ctx, scope, req.ID)
	return req, notifyErrors, nil
}

// Join returns the meeting route for the acting participant. A meeting that no
// longer validates is replaced by a new one and the old id is abandoned.
func (m *Machine) Join(ctx context.Context, scope Scope, requestID string, role types.ParticipantRole) (*types.JoinResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ctx, span := m.tracing.StartSpan(ctx, "consultation.join",
		attribute.String("consultation.id", requestID),
		attribute.String("participant.role", string(role)),
	)
	defer span.End()

	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		m.tracing.RecordError(span, err)
		return nil, err
	}
	if err := authorizeRole(scope.Actor, req, role); err != nil {
		return nil, err
	}
	if req.Status != types.ConsultationConfirmed || req.MeetingID == nil {
		return nil, types.NewStateConflictError(req.ID, req.Status)
	}

	actor := types.ResolvedIdentity{ID: scope.Actor.UserID, DisplayName: scope.Actor.Name}
	token, err := m.provisioner.GenerateToken(actor.ID, actor.DisplayName)
	if err != nil {
		return nil, types.NewProvisioningError(fmt.Errorf("failed to generate meeting token: %w", err))
	}

	meetingID := req.Meeting()
	result := &types.JoinResult{MeetingID: meetingID}

	validation, err := m.provisioner.ValidateMeeting(ctx, token, meetingID)
	if err != nil || validation == nil || !validation.Valid {
		entry := m.logger.WithConsultation(req.ID).WithField("meeting_id", meetingID)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("Meeting failed validation, provisioning a replacement")

		replacement, err := m.provisioner.CreateMeeting(ctx, token)
		if err != nil {
			m.tracing.RecordError(span, err)
			return nil, provisioningError(err)
		}
		if err := m.repo.ReplaceMeeting(ctx, req.ID, meetingID, replacement); err != nil {
			m.tracing.RecordError(span, err)
			return nil, err
		}
		m.metrics.RecordReprovision()
		m.logger.Audit(scope.Actor.UserID, "consultation.meeting_replaced", req.ID, true, map[string]interface{}{
			"superseded": meetingID,
			"meeting_id": replacement,
		})

		req.MeetingID = &replacement
		result.MeetingID = replacement
		result.Superseded = meetingID

		m.notifyReplacement(ctx, scope, req, role, replacement)
	}

	if role == types.ParticipantDoctor {
		result.Path = m.paths.DoctorJoinPath(result.MeetingID, req.PatientID)
	} else {
		result.Path = m.paths.PatientJoinPath(result.MeetingID, req.DoctorID)
	}
	return result, nil
}

// pendingRequest loads requestID and checks the actor may move it
func (m *Machine) pendingRequest(ctx context.Context, actor types.Actor, requestID, action string) (*types.ConsultationRequest, error) {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := authorizeDoctor(actor, req); err != nil {
		return nil, err
	}
	if req.Status != types.ConsultationPending {
		m.metrics.RecordTransition(action, "state_conflict")
		m.logger.Audit(actor.UserID, "consultation."+action, req.ID, false, map[string]interface{}{"status": string(req.Status)})
		return nil, types.NewStateConflictError(req.ID, req.Status)
	}
	return req, nil
}

// provision acquires a token for doctor and creates a meeting
func (m *Machine) provision(ctx context.Context, doctor types.ResolvedIdentity) (string, error) {
	token, err := m.provisioner.GenerateToken(doctor.ID, doctor.DisplayName)
	if err != nil {
		return "", types.NewProvisioningError(fmt.Errorf("failed to generate meeting token: %w", err))
	}
	meetingID, err := m.provisioner.CreateMeeting(ctx, token)
	if err != nil {
		return "", provisioningError(err)
	}
	return meetingID, nil
}

func (m *Machine) notify(ctx context.Context, scope Scope, req *types.ConsultationRequest, errs *[]string, notice types.Notice) {
	if scope.Notices == nil {
		return
	}
	err := scope.Notices.Dispatch(ctx, notice)
	// a failed send may still have landed upstream
	m.invalidate(scope, notice.RecipientID)
	if err != nil {
		m.logger.WithConsultation(req.ID).WithError(err).Warnf("Failed to deliver %s notice to %s", notice.Kind, notice.RecipientID)
		m.metrics.RecordSystemError("notice_failed", "consultation")
		*errs = append(*errs, fmt.Sprintf("%s: %v", notice.RecipientID, err))
	}
}

// notifyReplacement tells the other participant about the new room
func (m *Machine) notifyReplacement(ctx context.Context, scope Scope, req *types.ConsultationRequest, role types.ParticipantRole, meetingID string) {
	notice := types.Notice{
		Kind:      types.NoticeMeetingReplaced,
		RequestID: req.ID,
		MeetingID: meetingID,
		From:      scope.Actor.Name,
	}
	if role == types.ParticipantDoctor {
		notice.RecipientID = req.PatientID
		notice.JoinPath = m.paths.PatientJoinPath(meetingID, req.DoctorID)
	} else {
		if req.DoctorID == "" {
			return
		}
		notice.RecipientID = req.DoctorID
		notice.JoinPath = m.paths.DoctorJoinPath(meetingID, req.PatientID)
	}
	var ignored []string
	m.notify(ctx, scope, req, &ignored, notice)
}

// doctorNoticeRecipient picks the thread the doctor's copy of a notice lands in.
// Notices are sent from the acting user's session, so a doctor acting on their
// own request gets it in the shared thread with the patient.
func doctorNoticeRecipient(actor types.Actor, req *types.ConsultationRequest, doctor types.ResolvedIdentity) string {
	if actor.UserID == doctor.ID {
		return req.PatientID
	}
	return doctor.ID
}

// invalidate makes the next read of the actor's thread with recipientID go upstream
func (m *Machine) invalidate(scope Scope, recipientID string) {
	if scope.Threads != nil {
		scope.Threads.InvalidateWith(recipientID)
	}
}

func (m *Machine) refresh(ctx context.Context, scope Scope, requestID string) {
	if scope.Threads == nil {
		return
	}
	if _, err := scope.Threads.ListThreads(ctx); err != nil {
		m.logger.WithConsultation(requestID).WithError(err).Warn("Thread list refresh failed")
	}
}

func (m *Machine) recordTransitionError(action string, err error) {
	if errors.Is(err, types.ErrStateConflict) {
		m.metrics.RecordTransition(action, "state_conflict")
		return
	}
	m.metrics.RecordTransition(action, "error")
}

func provisioningError(err error) error {
	if errors.Is(err, types.ErrProvisioning) {
		return err
	}
	return types.NewProvisioningError(err)
}

// authorizeDoctor allows the request's doctor, or any doctor when the doctor is unresolved
func authorizeDoctor(actor types.Actor, req *types.ConsultationRequest) error {
	switch actor.Role {
	case types.RoleAdministrator, types.RoleHospital:
		return nil
	case types.RoleDoctor:
		if doctor, ok := types.AsResolved(resolveRequestDoctor(req)); ok && doctor.ID != actor.UserID {
			return types.NewAuthorizationError("consultation request is addressed to another doctor")
		}
		return nil
	}
	return types.NewAuthorizationError("only the doctor can confirm or cancel a consultation request")
}

func authorizeParticipant(actor types.Actor, req *types.ConsultationRequest) error {
	switch actor.Role {
	case types.RolePatient:
		return authorizeRole(actor, req, types.ParticipantPatient)
	case types.RoleDoctor:
		return authorizeRole(actor, req, types.ParticipantDoctor)
	}
	return nil
}

func authorizeRole(actor types.Actor, req *types.ConsultationRequest, role types.ParticipantRole) error {
	switch role {
	case types.ParticipantPatient:
		if actor.UserID != req.PatientID {
			return types.NewAuthorizationError("not the patient of this consultation")
		}
	case types.ParticipantDoctor:
		if actor.Role != types.RoleDoctor {
			return types.NewAuthorizationError("not a doctor")
		}
		if doctor, ok := types.AsResolved(resolveRequestDoctor(req)); ok && doctor.ID != actor.UserID {
			return types.NewAuthorizationError("not the doctor of this consultation")
		}
	default:
		return types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown role %q", role), nil)
	}
	return nil
}
