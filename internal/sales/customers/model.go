package customers

import "time"

// Type separates business accounts from consumers.
type Type string

const (
	TypeB2B Type = "B2B"
	TypeB2C Type = "B2C"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	return t == TypeB2B || t == TypeB2C
}

// Customer is the buyer every sales document and communication points at.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Type      Type      `json:"type"`
	CompanyID *string   `json:"companyId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Company is the legal entity behind a B2B customer.
type Company struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registrationNumber"`
	TaxID              string    `json:"taxId"`
	Industry           string    `json:"industry,omitempty"`
	Address            string    `json:"address,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Address is a delivery destination owned by a customer.
type Address struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Label      string `json:"label"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	IsDefault  bool   `json:"isDefault"`
}
