package types

// UserRole represents the roles that reach the consultation engine
type UserRole string

const (
	RolePatient       UserRole = "patient"
	RoleDoctor        UserRole = "doctor"
	RoleHospital      UserRole = "hospital"
	RoleAdministrator UserRole = "administrator"
)

// UserClaims represents the platform JWT claims forwarded by the frontend
type UserClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Name     string   `json:"name,omitempty"`
	Role     UserRole `json:"role"`
	// Token is the raw bearer token, forwarded to the messaging API.
	Token string `json:"-"`
}

// Actor is the identity driving an operation
type Actor struct {
	UserID string
	Name   string
	Role   UserRole
}

// ActorFromClaims builds an Actor from validated claims
func ActorFromClaims(c *UserClaims) Actor {
	name := c.Name
	if name == "" {
		name = c.Username
	}
	return Actor{UserID: c.UserID, Name: name, Role: c.Role}
}
