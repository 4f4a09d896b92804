package repository

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSlugTaken         = errors.New("slug already taken")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStaleOrderStatus  = errors.New("order status changed concurrently")
)
