package consultation

import (
	"net/url"
	"strings"
)

// Default join path prefixes
const (
	DefaultPatientPathPrefix = "/consultation"
	DefaultDoctorPathPrefix  = "/doctor/consultation"
)

// Paths builds the client routes used to enter a meeting
type Paths struct {
	PatientPrefix string
	DoctorPrefix  string
}

// DefaultPaths returns the standard patient and doctor routes
func DefaultPaths() Paths {
	return Paths{PatientPrefix: DefaultPatientPathPrefix, DoctorPrefix: DefaultDoctorPathPrefix}
}

// PatientJoinPath is {patientPrefix}/{meetingId}/{doctorId}
func (p Paths) PatientJoinPath(meetingID, doctorID string) string {
	return join(p.PatientPrefix, DefaultPatientPathPrefix, meetingID, doctorID)
}

// DoctorJoinPath is {doctorPrefix}/{meetingId}/{patientId}
func (p Paths) DoctorJoinPath(meetingID, patientID string) string {
	return join(p.DoctorPrefix, DefaultDoctorPathPrefix, meetingID, patientID)
}

func join(prefix, fallback string, segments ...string) string {
	if prefix == "" {
		prefix = fallback
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
