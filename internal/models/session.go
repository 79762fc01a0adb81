package models

// SessionContext identifies the acting user. It is passed explicitly to the
// sync engine, the aggregator and every use case.
type SessionContext struct {
	UserID      string     `json:"userId"`
	FamilyID    *string    `json:"familyId,omitempty"`
	DisplayName string     `json:"displayName"`
	Role        FamilyRole `json:"role,omitempty"`
}

func (s SessionContext) HasFamily() bool {
	return s.FamilyID != nil && *s.FamilyID != ""
}

// InFamily reports whether familyID names the session's family.
func (s SessionContext) InFamily(familyID *string) bool {
	return s.HasFamily() && familyID != nil && *familyID == *s.FamilyID
}
