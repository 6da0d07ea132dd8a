package types

// Identity is the normalized outcome of looking up a participant identity.
// It is either ResolvedIdentity or UnresolvedIdentity.
type Identity interface {
	isIdentity()
}

// ResolvedIdentity is a participant with a usable id
type ResolvedIdentity struct {
	ID          string
	DisplayName string
}

// UnresolvedIdentity marks a lookup where every candidate field was empty
type UnresolvedIdentity struct{}

func (ResolvedIdentity) isIdentity()   {}
func (UnresolvedIdentity) isIdentity() {}

// AsResolved returns the resolved identity, if any
func AsResolved(id Identity) (ResolvedIdentity, bool) {
	r, ok := id.(ResolvedIdentity)
	return r, ok
}
