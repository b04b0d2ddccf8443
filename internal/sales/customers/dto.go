package customers

// CreateCustomerRequest registers a customer, optionally with its company.
type CreateCustomerRequest struct {
	Name    string                `json:"name" validate:"required,max=200"`
	Email   string                `json:"email" validate:"required,email"`
	Phone   string                `json:"phone" validate:"required,min=6,max=32"`
	Type    Type                  `json:"type" validate:"required,oneof=B2B B2C"`
	Company *CreateCompanyRequest `json:"company,omitempty"`
}

// CreateCompanyRequest carries the legal entity fields of a B2B customer.
type CreateCompanyRequest struct {
	Name               string `json:"name" validate:"required,max=200"`
	RegistrationNumber string `json:"registrationNumber" validate:"required,max=64"`
	TaxID              string `json:"taxId" validate:"required"`
	Industry           string `json:"industry"`
	Address            string `json:"address"`
}

// AddAddressRequest attaches a delivery address to a customer.
type AddAddressRequest struct {
	Label      string `json:"label" validate:"required,max=64"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode" validate:"omitempty,numeric,len=5"`
	IsDefault  bool   `json:"isDefault"`
}
