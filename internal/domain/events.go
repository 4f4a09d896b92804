package domain

import "time"

type OrderEventItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
}

type OrderPlacedEvent struct {
	OrderID     int64            `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	UserID      *int64           `json:"user_id,omitempty"`
	TotalAmount string           `json:"total_amount"`
	Currency    Currency         `json:"currency"`
	Items       []OrderEventItem `json:"items"`
	PlacedAt    time.Time        `json:"placed_at"`
}

type OrderCancelledEvent struct {
	OrderID     int64            `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	Items       []OrderEventItem `json:"items"`
	CancelledAt time.Time        `json:"cancelled_at"`
}
