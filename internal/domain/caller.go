package domain

// Caller is the verified identity handed in by the auth layer.
// An empty OwnerID is the anonymous public caller.
type Caller struct {
	OwnerID string
}

// PublicCaller returns the anonymous caller.
func PublicCaller() Caller { return Caller{} }

// OwnerCaller returns a caller acting as the given manager.
func OwnerCaller(ownerID string) Caller { return Caller{OwnerID: ownerID} }

// IsPublic reports whether the caller is anonymous.
func (c Caller) IsPublic() bool { return c.OwnerID == "" }

// Owns reports whether the caller manages q.
func (c Caller) Owns(q *Queue) bool {
	return !c.IsPublic() && q.OwnerID == c.OwnerID
}
