package consultation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/logger"
	"github.com/medrex/teleconsult/pkg/types"
)

// Booker is the branch point of the booking screen: a video consultation goes
// to the state machine, an in-person visit goes to the slot booking endpoint.
type Booker struct {
	machine      *Machine
	appointments interfaces.AppointmentAPI
	validate     *validator.Validate
	logger       *logger.Logger
}

// NewBooker creates a booker
func NewBooker(machine *Machine, appointments interfaces.AppointmentAPI, log *logger.Logger) *Booker {
	return &Booker{
		machine:      machine,
		appointments: appointments,
		validate:     validator.New(),
		logger:       log,
	}
}

// Slots lists the bookable slots of doctorID on date
func (b *Booker) Slots(ctx context.Context, authToken, doctorID, date string) ([]types.Slot, error) {
	return b.appointments.CheckAvailability(ctx, authToken, doctorID, date)
}

// Book routes intent by consultation type
func (b *Booker) Book(ctx context.Context, scope Scope, authToken string, intent *types.ConsultationIntent) (*types.IntentOutcome, error) {
	if intent == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "booking intent is required", nil)
	}
	if err := b.validate.Struct(intent); err != nil {
		return nil, types.NewValidationError(types.ErrCodeValidationFailed, "invalid booking intent", map[string]interface{}{"error": err.Error()})
	}

	switch intent.Type {
	case types.ConsultationVideo:
		req, err := b.machine.Create(ctx, scope, intent.Video)
		if err != nil {
			return nil, err
		}
		return &types.IntentOutcome{Type: intent.Type, Consultation: req}, nil

	case types.ConsultationInPerson:
		if scope.Actor.Role == types.RolePatient && intent.Booking.PatientID != scope.Actor.UserID {
			return nil, types.NewAuthorizationError("patients can only book for themselves")
		}
		booking, err := b.appointments.Book(ctx, authToken, intent.Booking)
		if err != nil {
			return nil, fmt.Errorf("failed to book appointment: %w", err)
		}
		b.logger.Audit(scope.Actor.UserID, "appointment.book", booking.ID, true, map[string]interface{}{"doctor_id": intent.Booking.DoctorID})
		return &types.IntentOutcome{Type: intent.Type, Booking: booking}, nil
	}

	return nil, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("unknown consultation type %q", intent.Type), nil)
}
