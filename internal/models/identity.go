package models

// Role identifies which side of a consultation an identity belongs to.
type Role string

const (
	RoleUser    Role = "user"
	RolePartner Role = "partner"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RolePartner
}

// Identity is the resolved caller behind a bearer credential.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

func (i Identity) IsUser() bool    { return i.Role == RoleUser }
func (i Identity) IsPartner() bool { return i.Role == RolePartner }
