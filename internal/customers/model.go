package customers

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/shared"
)

// Status values of a customer.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

var (
	ErrCustomerNotFound = fmt.Errorf("%w: customers: customer not found", shared.ErrNotFound)
	ErrDuplicateCode    = fmt.Errorf("%w: customers: duplicate code", shared.ErrConflict)
	ErrHasSubscriptions = fmt.Errorf("%w: customers: customer has subscriptions", shared.ErrConflict)
)

// Customer is a billed party.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"customer_code"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the editable customer fields.
type Input struct {
	Name    string `json:"name" validate:"required,min=2"`
	Code    string `json:"customer_code" validate:"required,min=5"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"required,bdphone"`
	Address string `json:"address"`
	Status  string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

// ListFilters narrows customer listings.
type ListFilters struct {
	Search  string
	SortBy  string
	SortDir string
	Page    int
	Limit   int
}
