package types

import "time"

// ConsultationStatus is the lifecycle state of a video consultation request
type ConsultationStatus string

const (
	ConsultationPending   ConsultationStatus = "pending"
	ConsultationConfirmed ConsultationStatus = "confirmed"
	ConsultationCancelled ConsultationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s ConsultationStatus) IsTerminal() bool {
	return s == ConsultationConfirmed || s == ConsultationCancelled
}

// Valid reports whether s is a known status
func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationPending, ConsultationConfirmed, ConsultationCancelled:
		return true
	}
	return false
}

// ConsultationType is the kind of visit a patient asks for
type ConsultationType string

const (
	ConsultationVideo    ConsultationType = "video"
	ConsultationInPerson ConsultationType = "in_person"
)

// DoctorProfile is the nested doctor object some callers attach to a request
type DoctorProfile struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Hospital  string `json:"hospital,omitempty"`
}

// PatientProfile is the patient display snapshot stored with a request
type PatientProfile struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// DoctorSnapshot carries every shape under which a doctor identity has been
// observed on incoming requests. It is normalized once by ResolveDoctorIdentity.
type DoctorSnapshot struct {
	DoctorID     string         `json:"doctorId,omitempty"`
	DoctorName   string         `json:"doctorName,omitempty"`
	Profile      *DoctorProfile `json:"doctor,omitempty"`
	ProviderID   string         `json:"providerId,omitempty"`
	ProviderName string         `json:"providerName,omitempty"`
}

// ConsultationRequest tracks a patient's ask for a video consultation.
// MeetingID is set if and only if Status is confirmed.
type ConsultationRequest struct {
	ID        string             `json:"id" db:"id"`
	PatientID string             `json:"patient_id" db:"patient_id"`
	DoctorID  string             `json:"doctor_id" db:"doctor_id"`
	Doctor    DoctorSnapshot     `json:"doctor" db:"doctor_snapshot"`
	Patient   PatientProfile     `json:"patient" db:"patient_snapshot"`
	Status    ConsultationStatus `json:"status" db:"status"`
	MeetingID *string            `json:"meeting_id,omitempty" db:"meeting_id"`
	Reason    string             `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// Confirm moves a pending request to confirmed and attaches the meeting id
func (r *ConsultationRequest) Confirm(meetingID string, at time.Time) error {
	if r.Status != ConsultationPending {
		return NewStateConflictError(r.ID, r.Status)
	}
	if meetingID == "" {
		return NewValidationError(ErrCodeInvalidInput, "meeting id is required to confirm", nil)
	}
	r.Status = ConsultationConfirmed
	r.MeetingID = &meetingID
	r.UpdatedAt = at
	return nil
}

// Cancel moves a pending request to cancelled
func (r *ConsultationRequest) Cancel(at time.Time) error {
	if r.Status != ConsultationPending {
		return NewStateConflictError(r.ID, r.Status)
	}
	r.Status = ConsultationCancelled
	r.MeetingID = nil
	r.UpdatedAt = at
	return nil
}

// Meeting returns the meeting id or "" when none is attached
func (r *ConsultationRequest) Meeting() string {
	if r.MeetingID == nil {
		return ""
	}
	return *r.MeetingID
}

// CreateConsultationRequest is the patient's ask
type CreateConsultationRequest struct {
	PatientID string         `json:"patient_id" validate:"required"`
	Patient   PatientProfile `json:"patient"`
	Doctor    DoctorSnapshot `json:"doctor"`
	Reason    string         `json:"reason,omitempty" validate:"max=2000"`
}

// ConsultationFilters narrows request listings
type ConsultationFilters struct {
	PatientID string             `json:"patient_id,omitempty"`
	DoctorID  string             `json:"doctor_id,omitempty"`
	Status    ConsultationStatus `json:"status,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// ConfirmResult is what a successful confirm reports back to the doctor
type ConfirmResult struct {
	Request     *ConsultationRequest `json:"request"`
	MeetingID   string               `json:"meeting_id"`
	PatientPath string               `json:"patient_path"`
	DoctorPath  string               `json:"doctor_path,omitempty"`
	// NotifyErrors lists notices that could not be delivered; the confirm still stands.
	NotifyErrors []string `json:"notify_errors,omitempty"`
}

// JoinResult is the route a participant uses to enter the meeting
type JoinResult struct {
	MeetingID  string `json:"meeting_id"`
	Path       string `json:"path"`
	Superseded string `json:"superseded_meeting_id,omitempty"`
}

// MeetingValidation is the provider's answer for an existing meeting id
type MeetingValidation struct {
	Valid    bool                   `json:"valid"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
