package types

import "time"

// DateLayout is the wire format of slot dates
const DateLayout = "2006-01-02"

// Slot describes one bookable interval returned by the Appointment API
type Slot struct {
	ID        string    `json:"id,omitempty"`
	DoctorID  string    `json:"doctorId,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Available bool      `json:"available"`
}

// BookingRequest is forwarded to the booking endpoint unchanged
type BookingRequest struct {
	DoctorID  string    `json:"doctorId" validate:"required"`
	PatientID string    `json:"patientId" validate:"required"`
	SlotID    string    `json:"slotId,omitempty"`
	StartTime time.Time `json:"startTime" validate:"required"`
	EndTime   time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	Notes     string    `json:"notes,omitempty"`
}

// Booking is the record returned by the booking endpoint
type Booking struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    string    `json:"status"`
}

// ConsultationIntent is the patient's choice on the booking screen
type ConsultationIntent struct {
	Type    ConsultationType          `json:"type" validate:"required,oneof=video in_person"`
	Video   *CreateConsultationRequest `json:"video,omitempty" validate:"required_if=Type video"`
	Booking *BookingRequest            `json:"booking,omitempty" validate:"required_if=Type in_person"`
}

// IntentOutcome reports which path a ConsultationIntent took
type IntentOutcome struct {
	Type         ConsultationType     `json:"type"`
	Consultation *ConsultationRequest `json:"consultation,omitempty"`
	Booking      *Booking             `json:"booking,omitempty"`
}
