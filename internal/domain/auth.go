package domain

// Role is a service-desk role carried in identity-service tokens.
type Role string

const (
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated employee behind a request. Tokens are
// issued by the identity service; this service only verifies them.
type Principal struct {
	EmployeeID     string
	OrganisationID string
	Roles          []Role
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Roles {
		for _, want := range roles {
			if held == want {
				return true
			}
		}
	}
	return false
}
