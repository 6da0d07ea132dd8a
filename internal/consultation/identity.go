package consultation

import (
	"strings"

	"github.com/medrex/teleconsult/pkg/types"
)

// ResolveDoctorIdentity normalizes the doctor identity of a request. Candidates
// are tried in order: the explicit id (the request's own doctor id, then the
// snapshot's), the nested profile id, the legacy provider alias. When all are
// empty the result is UnresolvedIdentity.
func ResolveDoctorIdentity(explicitID string, snap types.DoctorSnapshot) types.Identity {
	name := firstNonEmpty(snap.DoctorName, profileName(snap.Profile), snap.ProviderName)

	var nestedID string
	if snap.Profile != nil {
		nestedID = snap.Profile.ID
	}

	id := firstNonEmpty(explicitID, snap.DoctorID, nestedID, snap.ProviderID)
	if id == "" {
		return types.UnresolvedIdentity{}
	}
	return types.ResolvedIdentity{ID: id, DisplayName: name}
}

// resolveRequestDoctor resolves the doctor of a stored request
func resolveRequestDoctor(req *types.ConsultationRequest) types.Identity {
	return ResolveDoctorIdentity(req.DoctorID, req.Doctor)
}

func profileName(p *types.DoctorProfile) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
