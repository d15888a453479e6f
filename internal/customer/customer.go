// Package customer stores the customers created by imports. Every record is
// scoped to a brand (tenant); lookups never cross brands.
package customer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by FindByEmail when no customer matches.
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicate is returned by Create when (brand, email) already exists.
	ErrDuplicate = errors.New("customer already exists")
)

// Customer is one imported contact.
type Customer struct {
	ID          string    `json:"id"`
	BrandID     string    `json:"brandId"`
	FullName    string    `json:"fullName"`
	CompanyName string    `json:"companyName"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	FullAddress string    `json:"fullAddress"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists customers. Emails are compared exactly.
type Store interface {
	// FindByEmail returns ErrNotFound when the brand has no such customer.
	FindByEmail(ctx context.Context, brandID, email string) (*Customer, error)
	// ExistingEmails reports which of emails the brand already has.
	ExistingEmails(ctx context.Context, brandID string, emails []string) (map[string]bool, error)
	// Create fills in ID and timestamps. Returns ErrDuplicate on conflict.
	Create(ctx context.Context, c *Customer) error
	// List returns the brand's customers, oldest first.
	List(ctx context.Context, brandID string) ([]Customer, error)
}
