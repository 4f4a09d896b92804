package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeAccessory ProductType = "accessory"
	ProductTypeDigital   ProductType = "digital"
	ProductTypeService   ProductType = "service"
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeAccessory, ProductTypeDigital, ProductTypeService:
		return true
	}
	return false
}

type Product struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Type        ProductType     `json:"type" db:"type"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	Stock       int64           `json:"stock" db:"stock"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type UpdateProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Type        *ProductType     `json:"type"`
	ImageURL    *string          `json:"image_url"`
	IsActive    *bool            `json:"is_active"`
	Stock       *int64           `json:"stock"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ProductFilter narrows a catalog listing. Zero values mean "no filter".
type ProductFilter struct {
	Type        ProductType
	Active      *bool
	Search      string
	InStockOnly bool
	SortBy      string
	SortDir     SortDirection
	Page        int64
	PageSize    int64
}
