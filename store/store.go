// Package store defines the authoritative order store and reference data
// source used by the kitchen and cart engines, plus an in-memory backend.
package store

import (
	"context"
	"errors"

	"clubpos/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrServedItemsLocked is returned when replacing the items of an order
	// that already has a served line.
	ErrServedItemsLocked = errors.New("order has served items")
)

// ItemWriter is the part of the store the kitchen engine writes through.
type ItemWriter interface {
	UpdateOrderItem(ctx context.Context, itemID string, u models.ItemUpdate) (models.OrderItem, error)
	UpdateOrder(ctx context.Context, orderID string, u models.OrderUpdate) (models.Order, error)
}

type Orders interface {
	ItemWriter
	FetchOrder(ctx context.Context, orderID string) (models.Order, error)
	FetchOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	CreateOrder(ctx context.Context, p models.OrderPayload) (models.Order, error)
	CreateOrderItem(ctx context.Context, orderID string, p models.OrderItemPayload) (models.OrderItem, error)
	ReplaceOrderItems(ctx context.Context, orderID string, items []models.OrderItemPayload) ([]models.OrderItem, error)
}

type Catalog interface {
	FetchProducts(ctx context.Context) ([]models.Product, error)
	FetchProductCategories(ctx context.Context) ([]models.ProductCategory, error)
	FetchTables(ctx context.Context) ([]models.Table, error)
}

type Store interface {
	Orders
	Catalog
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close(ctx context.Context) error
}
