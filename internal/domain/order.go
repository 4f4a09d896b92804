package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// statusTransitions holds the transitions the generic status-update path may
// perform. Cancellation is deliberately absent: only the dedicated cancel
// operation moves an order to cancelled, since it is the one path that
// restores stock.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCompleted},
	OrderStatusShipped:    {OrderStatusCompleted},
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s == target {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodPaypal         PaymentMethod = "paypal"
	PaymentMethodBaridiMob      PaymentMethod = "baridi_mob"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPaypal, PaymentMethodBaridiMob, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyDZD Currency = "DZD"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyDZD, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// CustomerInfo identifies a guest buyer when no authenticated user owns the
// order.
type CustomerInfo struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
}

type Order struct {
	ID              int64           `json:"id" db:"id"`
	OrderNumber     string          `json:"order_number" db:"order_number"`
	UserID          *int64          `json:"user_id,omitempty" db:"user_id"`
	Status          OrderStatus     `json:"status" db:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method" db:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	ShippingAddress Address         `json:"shipping_address" db:"shipping_address"`
	BillingAddress  Address         `json:"billing_address" db:"billing_address"`
	Currency        Currency        `json:"currency" db:"currency"`
	TotalAmount     decimal.Decimal `json:"total_amount" db:"total_amount"`
	CustomerInfo    *CustomerInfo   `json:"customer_info,omitempty" db:"customer_info"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	Items           []OrderItem     `json:"items" db:"items"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type OrderItem struct {
	ID        int64  `json:"id" db:"id"`
	OrderID   int64  `json:"order_id" db:"order_id"`
	ProductID int64  `json:"product_id" db:"product_id"`
	// Name is captured at order time so the line stays readable after the
	// product is deactivated or renamed.
	Name     string          `json:"name" db:"name"`
	Price    decimal.Decimal `json:"price" db:"price"`
	Quantity int32           `json:"quantity" db:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// RecalculateSubtotal derives subtotal from price and quantity. Call it after
// mutating either field so the stored value never goes stale.
func (i *OrderItem) RecalculateSubtotal() {
	i.Subtotal = i.Price.Mul(decimal.NewFromInt32(i.Quantity))
}

func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for idx := range o.Items {
		o.Items[idx].RecalculateSubtotal()
		total = total.Add(o.Items[idx].Subtotal)
	}
	o.TotalAmount = total
}

// Cancellable reports whether the dedicated cancel operation may run.
func (o *Order) Cancellable() bool {
	return o.Status == OrderStatusPending
}

// CartLine is a (product, quantity) pair submitted at checkout.
type CartLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gte=1"`
}

// AdminOrderRow is the flattened shape the admin listing returns: one row
// per order with the owning customer resolved (guest info when no user).
type AdminOrderRow struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	CustomerName  string          `json:"customer_name"`
	TotalAmount   decimal.Decimal `json:"total"`
	Currency      Currency        `json:"currency"`
	Status        OrderStatus     `json:"status"`
	ProductsCount int64           `json:"products_count"`
	CreatedAt     time.Time       `json:"date"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Search        string
	SortBy        string
	SortDir       SortDirection
	Page          int64
	PageSize      int64
}
