package customers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
)

// Repository is the persistence port for customer master data.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetAddress(ctx context.Context, id string) (*Address, error)
	ListAddresses(ctx context.Context, customerID string) ([]Address, error)
	InsertCompany(ctx context.Context, company Company) error
	InsertCustomer(ctx context.Context, customer Customer) error
	InsertAddress(ctx context.Context, address Address) error
}

type repository struct {
	db   db.Querier
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, type, company_id, created_at, updated_at
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Type, &c.CompanyID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (r *repository) GetAddress(ctx context.Context, id string) (*Address, error) {
	var a Address
	err := r.db.QueryRow(ctx, `
		SELECT id, customer_id, label, street, city, province, postal_code, is_default
		FROM customer_addresses WHERE id = $1`, id).
		Scan(&a.ID, &a.CustomerID, &a.Label, &a.Street, &a.City, &a.Province, &a.PostalCode, &a.IsDefault)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &a, nil
}

func (r *repository) ListAddresses(ctx context.Context, customerID string) ([]Address, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, customer_id, label, street, city, province, postal_code, is_default
		FROM customer_addresses WHERE customer_id = $1
		ORDER BY is_default DESC, label`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var out []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.Label, &a.Street, &a.City, &a.Province, &a.PostalCode, &a.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Unique constraints on companies, as named in the schema.
const (
	companyRegistrationKey = "companies_registration_number_key"
	companyTaxIDKey        = "companies_tax_id_key"
)

func (r *repository) InsertCompany(ctx context.Context, c Company) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO companies (id, name, registration_number, tax_id, industry, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.RegistrationNumber, c.TaxID, c.Industry, c.Address, c.CreatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok {
		if constraint == companyTaxIDKey {
			return shared.AlreadyExists("company", c.TaxID, constraint)
		}
		return shared.AlreadyExists("company", c.RegistrationNumber, constraint)
	}
	return err
}

func (r *repository) InsertCustomer(ctx context.Context, c Customer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customers (id, name, email, phone, type, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, c.Email, c.Phone, c.Type, c.CompanyID, c.CreatedAt, c.UpdatedAt)
	if constraint, ok := db.IsUniqueViolation(err); ok {
		return shared.AlreadyExists("customer", c.Email, constraint)
	}
	return err
}

func (r *repository) InsertAddress(ctx context.Context, a Address) error {
	if a.IsDefault {
		if _, err := r.db.Exec(ctx, `UPDATE customer_addresses SET is_default = FALSE WHERE customer_id = $1`, a.CustomerID); err != nil {
			return err
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO customer_addresses (id, customer_id, label, street, city, province, postal_code, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CustomerID, a.Label, a.Street, a.City, a.Province, a.PostalCode, a.IsDefault)
	return err
}
