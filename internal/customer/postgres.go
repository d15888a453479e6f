package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS customers (
	id           UUID PRIMARY KEY,
	brand_id     TEXT NOT NULL,
	full_name    TEXT NOT NULL,
	company_name TEXT NOT NULL,
	email        TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	full_address TEXT NOT NULL,
	language     TEXT NOT NULL DEFAULT 'en',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	CONSTRAINT customers_brand_email_unique UNIQUE (brand_id, email)
);
CREATE INDEX IF NOT EXISTS customers_brand_id_idx ON customers (brand_id);
`

const customerColumns = `id, brand_id, full_name, company_name, email, phone_number, full_address, language, created_at, updated_at`

// PostgresStore is the Store backed by the customers table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps a pool or transaction.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the customers table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create customers table: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, brandID, email string) (*Customer, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE brand_id = $1 AND email = $2`,
		brandID, email)

	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by email: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ExistingEmails(ctx context.Context, brandID string, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(emails) == 0 {
		return found, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT email FROM customers WHERE brand_id = $1 AND email = ANY($2)`,
		brandID, emails)
	if err != nil {
		return nil, fmt.Errorf("query existing emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		found[email] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing emails: %w", err)
	}
	return found, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Customer) error {
	id := uuid.New()

	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (id, brand_id, full_name, company_name, email, phone_number, full_address, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (brand_id, email) DO NOTHING
		RETURNING created_at, updated_at`,
		id, c.BrandID, c.FullName, c.CompanyName, c.Email, c.PhoneNumber, c.FullAddress, c.Language,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrDuplicate, c.Email)
	case err != nil:
		return fmt.Errorf("insert customer: %w", err)
	}
	c.ID = id.String()
	return nil
}

func (s *PostgresStore) List(ctx context.Context, brandID string) ([]Customer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE brand_id = $1 ORDER BY created_at, id`,
		brandID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var (
		c  Customer
		id uuid.UUID
	)
	err := row.Scan(&id, &c.BrandID, &c.FullName, &c.CompanyName, &c.Email,
		&c.PhoneNumber, &c.FullAddress, &c.Language, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.String()
	return &c, nil
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
