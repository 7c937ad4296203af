package domain

// Employee is the contact record the identity service keeps for a person.
type Employee struct {
	ID             string
	OrganisationID string
	Name           string
	Email          string
	Phone          string
	IsActive       bool
}
