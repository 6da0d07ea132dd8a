package consultation

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/medrex/teleconsult/pkg/types"
)

// MockRepository is a mock implementation of interfaces.ConsultationRepository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, req *types.ConsultationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*types.ConsultationRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so the machine's mutations do not leak back into the fixture
	c := *args.Get(0).(*types.ConsultationRequest)
	return &c, args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filters *types.ConsultationFilters) ([]*types.ConsultationRequest, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.ConsultationRequest), args.Error(1)
}

func (m *MockRepository) Transition(ctx context.Context, req *types.ConsultationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRepository) ReplaceMeeting(ctx context.Context, id, oldMeetingID, newMeetingID string) error {
	args := m.Called(ctx, id, oldMeetingID, newMeetingID)
	return args.Error(0)
}

// MockProvisioner is a mock implementation of interfaces.MeetingProvisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) GenerateToken(participantID, displayName string) (string, error) {
	args := m.Called(participantID, displayName)
	return args.String(0), args.Error(1)
}

func (m *MockProvisioner) CreateMeeting(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *MockProvisioner) ValidateMeeting(ctx context.Context, token, meetingID string) (*types.MeetingValidation, error) {
	args := m.Called(ctx, token, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MeetingValidation), args.Error(1)
}

// MockAppointmentAPI is a mock implementation of interfaces.AppointmentAPI
type MockAppointmentAPI struct {
	mock.Mock
}

func (m *MockAppointmentAPI) CheckAvailability(ctx context.Context, authToken, doctorID, date string) ([]types.Slot, error) {
	args := m.Called(ctx, authToken, doctorID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Slot), args.Error(1)
}

func (m *MockAppointmentAPI) Book(ctx context.Context, authToken string, req *types.BookingRequest) (*types.Booking, error) {
	args := m.Called(ctx, authToken, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Booking), args.Error(1)
}

// recordingDispatcher keeps every notice and fails for the listed recipients
type recordingDispatcher struct {
	mu      sync.Mutex
	notices []types.Notice
	failFor map[string]error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{failFor: make(map[string]error)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, notice types.Notice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[notice.RecipientID]; ok {
		return err
	}
	d.notices = append(d.notices, notice)
	return nil
}

func (d *recordingDispatcher) sent() []types.Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Notice(nil), d.notices...)
}

// countingRefresher counts thread list reloads and records invalidated counterparts
type countingRefresher struct {
	mu          sync.Mutex
	calls       int
	err         error
	invalidated []string
}

func (r *countingRefresher) InvalidateWith(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, userID)
}

func (r *countingRefresher) invalidations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.invalidated...)
}

func (r *countingRefresher) ListThreads(ctx context.Context) ([]*types.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil, r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
