package customers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

type mockRepository struct {
	customers map[string]*Customer
	companies map[string]Company
	addresses map[string]*Address

	insertCustomerErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		customers: make(map[string]*Customer),
		companies: make(map[string]Company),
		addresses: make(map[string]*Address),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) GetCustomer(_ context.Context, id string) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) GetAddress(_ context.Context, id string) (*Address, error) {
	a, ok := m.addresses[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (m *mockRepository) ListAddresses(_ context.Context, customerID string) ([]Address, error) {
	var out []Address
	for _, a := range m.addresses {
		if a.CustomerID == customerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertCompany(_ context.Context, c Company) error {
	for _, existing := range m.companies {
		if existing.RegistrationNumber == c.RegistrationNumber {
			return shared.AlreadyExists("company", c.RegistrationNumber, companyRegistrationKey)
		}
		if existing.TaxID == c.TaxID {
			return shared.AlreadyExists("company", c.TaxID, companyTaxIDKey)
		}
	}
	m.companies[c.ID] = c
	return nil
}

func (m *mockRepository) InsertCustomer(_ context.Context, c Customer) error {
	if m.insertCustomerErr != nil {
		return m.insertCustomerErr
	}
	m.customers[c.ID] = &c
	return nil
}

func (m *mockRepository) InsertAddress(_ context.Context, a Address) error {
	m.addresses[a.ID] = &a
	return nil
}

func TestNormalizeTaxID(t *testing.T) {
	digits, err := NormalizeTaxID("01.234.567.8-901.000")
	require.NoError(t, err)
	assert.Equal(t, "012345678901000", digits)

	_, err = NormalizeTaxID("0123456789012345")
	assert.NoError(t, err)

	for _, bad := range []string{"", "12.345", "01.234.567.8-901.00A"} {
		_, err := NormalizeTaxID(bad)
		assert.ErrorIs(t, err, shared.ErrValidation, bad)
	}
}

func TestServiceCreateB2B(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	c, err := svc.Create(context.Background(), CreateCustomerRequest{
		Name:  "PT Maju Jaya",
		Email: "buyer@majujaya.co.id",
		Phone: "081234567890",
		Type:  TypeB2B,
		Company: &CreateCompanyRequest{
			Name:               "PT Maju Jaya",
			RegistrationNumber: "NIB-0001",
			TaxID:              "01.234.567.8-901.000",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c.CompanyID)
	assert.Equal(t, "012345678901000", repo.companies[*c.CompanyID].TaxID)

	_, err = svc.Create(context.Background(), CreateCustomerRequest{
		Name:  "PT Maju Jaya Cabang",
		Email: "cabang@majujaya.co.id",
		Phone: "081234567891",
		Type:  TypeB2B,
		Company: &CreateCompanyRequest{
			Name:               "PT Maju Jaya Cabang",
			RegistrationNumber: "NIB-0002",
			TaxID:              "012345678901000",
		},
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.Contains(t, err.Error(), companyTaxIDKey)

	_, err = svc.Create(context.Background(), CreateCustomerRequest{
		Name:  "PT Maju Jaya Lain",
		Email: "lain@majujaya.co.id",
		Phone: "081234567892",
		Type:  TypeB2B,
		Company: &CreateCompanyRequest{
			Name:               "PT Maju Jaya Lain",
			RegistrationNumber: "NIB-0001",
			TaxID:              "098765432109000",
		},
	})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.Contains(t, err.Error(), companyRegistrationKey)
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(newMockRepository())

	_, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "x", Email: "not-an-email", Phone: "0812345", Type: TypeB2C})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreateCustomerRequest{Name: "x", Email: "a@b.co", Phone: "0812345", Type: TypeB2B})
	assert.ErrorIs(t, err, shared.ErrValidation, "B2B requires a company")

	_, err = svc.Create(context.Background(), CreateCustomerRequest{
		Name: "x", Email: "a@b.co", Phone: "0812345", Type: TypeB2B,
		Company: &CreateCompanyRequest{Name: "x", RegistrationNumber: "r", TaxID: "123"},
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceCreatePersistenceError(t *testing.T) {
	repo := newMockRepository()
	repo.insertCustomerErr = errors.New("db down")
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), CreateCustomerRequest{Name: "x", Email: "a@b.co", Phone: "0812345", Type: TypeB2C})
	assert.ErrorIs(t, err, shared.ErrPersistence)
}

func TestServiceAddressOf(t *testing.T) {
	repo := newMockRepository()
	repo.customers["c1"] = &Customer{ID: "c1", Type: TypeB2C}
	repo.addresses["a1"] = &Address{ID: "a1", CustomerID: "c1"}
	repo.addresses["a2"] = &Address{ID: "a2", CustomerID: "c2"}
	svc := NewService(repo)

	a, err := svc.AddressOf(context.Background(), "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	_, err = svc.AddressOf(context.Background(), "c1", "a2")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AddressOf(context.Background(), "c1", "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceAddAddress(t *testing.T) {
	repo := newMockRepository()
	repo.customers["c1"] = &Customer{ID: "c1", Type: TypeB2C}
	svc := NewService(repo)

	addr, err := svc.AddAddress(context.Background(), "c1", AddAddressRequest{Label: "Gudang", Street: "Jl. Merdeka 1", City: "Bandung", PostalCode: "40111", IsDefault: true})
	require.NoError(t, err)

	list, err := svc.Addresses(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, addr.ID, list[0].ID)

	_, err = svc.AddAddress(context.Background(), "c1", AddAddressRequest{Label: "x", Street: "y", City: "z", PostalCode: "12"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSchemaDeclaresCompanyConstraints(t *testing.T) {
	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "0001_sales_followup.sql"))
	require.NoError(t, err)

	for _, constraint := range []string{companyRegistrationKey, companyTaxIDKey, "customers_email_key"} {
		assert.Contains(t, string(schema), "CONSTRAINT "+constraint+" UNIQUE", constraint)
	}
}
