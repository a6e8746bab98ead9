// Package catalog manages service types and the billable services offered under them.
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/shared"
)

var (
	ErrServiceTypeNotFound = fmt.Errorf("%w: catalog: service type not found", shared.ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("%w: catalog: service not found", shared.ErrNotFound)
	ErrDuplicateName       = fmt.Errorf("%w: catalog: duplicate name", shared.ErrConflict)
	ErrInUse               = fmt.Errorf("%w: catalog: still referenced", shared.ErrConflict)
	ErrInvalidPrice        = fmt.Errorf("%w: catalog: invalid price", shared.ErrValidation)
)

// ServiceType groups services, for example "Internet" or "IPTV".
type ServiceType struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service is a catalog item with its list prices.
type Service struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	ServiceTypeID    uuid.UUID       `json:"service_type_id"`
	ServiceTypeTitle string          `json:"service_type"`
	InitCost         decimal.Decimal `json:"init_cost"`
	MMC              decimal.Decimal `json:"mmc"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ServiceTypeInput carries editable service type fields.
type ServiceTypeInput struct {
	Title       string `json:"title" validate:"required,min=2,max=120"`
	Description string `json:"description" validate:"max=500"`
}

// ServiceInput carries editable service fields.
type ServiceInput struct {
	Name          string          `json:"name" validate:"required,min=2,max=120"`
	ServiceTypeID string          `json:"service_type_id" validate:"required,uuid"`
	InitCost      decimal.Decimal `json:"init_cost"`
	MMC           decimal.Decimal `json:"mmc"`
}

// ListFilters narrows catalog listings.
type ListFilters struct {
	Search string
	Page   int
	Limit  int
}
