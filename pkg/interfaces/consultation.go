package interfaces

import (
	"context"

	"github.com/medrex/teleconsult/pkg/types"
)

// MeetingProvisioner is the external video meeting provider
type MeetingProvisioner interface {
	GenerateToken(participantID, displayName string) (string, error)
	CreateMeeting(ctx context.Context, token string) (string, error)
	ValidateMeeting(ctx context.Context, token, meetingID string) (*types.MeetingValidation, error)
}

// ConsultationRepository persists consultation requests. Requests are never deleted.
type ConsultationRepository interface {
	Create(ctx context.Context, req *types.ConsultationRequest) error
	GetByID(ctx context.Context, id string) (*types.ConsultationRequest, error)
	List(ctx context.Context, filters *types.ConsultationFilters) ([]*types.ConsultationRequest, error)
	// Transition applies a status change only if the stored status is still pending.
	Transition(ctx context.Context, req *types.ConsultationRequest) error
	// ReplaceMeeting swaps the meeting of a confirmed request.
	ReplaceMeeting(ctx context.Context, id, oldMeetingID, newMeetingID string) error
}

// AppointmentAPI is the adjacent slot and booking endpoint, called with the caller's bearer token
type AppointmentAPI interface {
	CheckAvailability(ctx context.Context, authToken, doctorID, date string) ([]types.Slot, error)
	Book(ctx context.Context, authToken string, req *types.BookingRequest) (*types.Booking, error)
}

// SessionStore persists per-user session keys across reloads
type SessionStore interface {
	Get(ctx context.Context, userID, key string) (string, bool, error)
	Set(ctx context.Context, userID, key, value string) error
	Delete(ctx context.Context, userID, key string) error
	Close() error
}
