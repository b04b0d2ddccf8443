package customers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Service manages customer master data and answers the lookups the sales
// documents depend on.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the customer service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get loads a customer.
func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("customer", id)
		}
		return nil, shared.Persistence("get customer", err)
	}
	return c, nil
}

// AddressOf loads an address and checks it belongs to customerID.
func (s *Service) AddressOf(ctx context.Context, customerID, addressID string) (*Address, error) {
	a, err := s.repo.GetAddress(ctx, addressID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFound("address", addressID)
		}
		return nil, shared.Persistence("get address", err)
	}
	if a.CustomerID != customerID {
		return nil, shared.Validation("shipping address does not belong to customer "+customerID, nil)
	}
	return a, nil
}

// Addresses lists the delivery addresses of a customer.
func (s *Service) Addresses(ctx context.Context, customerID string) ([]Address, error) {
	if _, err := s.Get(ctx, customerID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListAddresses(ctx, customerID)
	if err != nil {
		return nil, shared.Persistence("list addresses", err)
	}
	return list, nil
}

// Create registers a customer. A B2B customer brings its company, whose tax
// id is normalised and which is stored in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	if req.Type == TypeB2B && req.Company == nil {
		return nil, shared.Validation("B2B customers require company details", nil)
	}
	now := s.now()
	customer := Customer{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var company *Company
	if req.Company != nil {
		taxID, err := NormalizeTaxID(req.Company.TaxID)
		if err != nil {
			return nil, err
		}
		company = &Company{
			ID:                 uuid.NewString(),
			Name:               req.Company.Name,
			RegistrationNumber: req.Company.RegistrationNumber,
			TaxID:              taxID,
			Industry:           req.Company.Industry,
			Address:            req.Company.Address,
			CreatedAt:          now,
		}
		customer.CompanyID = &company.ID
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if company != nil {
			if err := tx.InsertCompany(ctx, *company); err != nil {
				return err
			}
		}
		return tx.InsertCustomer(ctx, customer)
	})
	if err != nil {
		return nil, shared.Persistence("create customer", err)
	}
	return &customer, nil
}

// AddAddress attaches a delivery address to an existing customer.
func (s *Service) AddAddress(ctx context.Context, customerID string, req AddAddressRequest) (*Address, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, customerID); err != nil {
		return nil, err
	}
	addr := Address{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Label:      req.Label,
		Street:     req.Street,
		City:       req.City,
		Province:   req.Province,
		PostalCode: req.PostalCode,
		IsDefault:  req.IsDefault,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		return tx.InsertAddress(ctx, addr)
	})
	if err != nil {
		return nil, shared.Persistence("add address", err)
	}
	return &addr, nil
}
