package types

import "time"

// ParticipantRole tags a thread member
type ParticipantRole string

const (
	ParticipantPatient ParticipantRole = "patient"
	ParticipantDoctor  ParticipantRole = "doctor"
)

// Participant references a user or doctor identity in a thread
type Participant struct {
	UserID string          `json:"userId"`
	Name   string          `json:"name,omitempty"`
	Role   ParticipantRole `json:"role"`
}

// Message is a single immutable entry in a thread
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"message"`
	Timestamp time.Time `json:"createdAt"`
	Persisted bool      `json:"persisted"`
}

// Thread is a two-party conversation between a patient and a doctor
type Thread struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages,omitempty"`
	LastActivity time.Time     `json:"lastActivity"`
}

// Counterpart returns the participant that is not userID
func (t *Thread) Counterpart(userID string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantByRole returns the member holding role
func (t *Thread) ParticipantByRole(role ParticipantRole) (Participant, bool) {
	for _, p := range t.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

// WellFormed reports whether the thread has exactly one patient and one doctor
func (t *Thread) WellFormed() bool {
	if len(t.Participants) != 2 {
		return false
	}
	_, hasPatient := t.ParticipantByRole(ParticipantPatient)
	_, hasDoctor := t.ParticipantByRole(ParticipantDoctor)
	return hasPatient && hasDoctor
}

// NoticeKind identifies a system-generated notice
type NoticeKind string

const (
	NoticeConsultationRequested NoticeKind = "consultation_requested"
	NoticeConsultationConfirmed NoticeKind = "consultation_confirmed"
	NoticeConsultationDeclined  NoticeKind = "consultation_declined"
	NoticeMeetingReplaced       NoticeKind = "meeting_replaced"
)

// Notice is a structured system message posted into a thread
type Notice struct {
	Kind        NoticeKind
	RecipientID string
	RequestID   string
	MeetingID   string
	JoinPath    string
	From        string
}
