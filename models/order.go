package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidStatus = errors.New("invalid status")

// ItemStatus is the fulfillment state of a single order line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
)

// itemFlow is the forward lifecycle of an item.
var itemFlow = []ItemStatus{ItemPending, ItemPreparing, ItemReady, ItemServed}

func (s ItemStatus) Valid() bool {
	for _, st := range itemFlow {
		if s == st {
			return true
		}
	}
	return false
}

// Next returns the state that follows s. ok is false for served and for
// unknown values.
func (s ItemStatus) Next() (next ItemStatus, ok bool) {
	for i, st := range itemFlow {
		if s == st && i+1 < len(itemFlow) {
			return itemFlow[i+1], true
		}
	}
	return "", false
}

func ParseItemStatus(v string) (ItemStatus, error) {
	s := ItemStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: item status %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// OrderStatus is the lifecycle state of a whole order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderReady, OrderServed, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Order is a customer order. A nil TableID means takeaway.
type Order struct {
	OrderID             string      `json:"orderid" bson:"orderid"`
	TableID             *string     `json:"tableid" bson:"tableid"`
	CustomerName        string      `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	Status              OrderStatus `json:"status" bson:"status"`
	Total               int64       `json:"total" bson:"total"`
	PaymentMethod       string      `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	Priority            string      `json:"priority,omitempty" bson:"priority,omitempty"`
	EstimatedCompletion *time.Time  `json:"estimated_completion,omitempty" bson:"estimated_completion,omitempty"`
	CreatedAt           time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" bson:"updated_at"`
}

// OrderItem is one line of an order. UnitPrice is the price captured when
// the line was added, not the live product price.
type OrderItem struct {
	ItemID    string     `json:"itemid" bson:"itemid"`
	OrderID   string     `json:"orderid" bson:"orderid"`
	ProductID string     `json:"productid" bson:"productid"`
	Quantity  int        `json:"quantity" bson:"quantity"`
	UnitPrice int64      `json:"unit_price" bson:"unit_price"`
	Subtotal  int64      `json:"subtotal" bson:"subtotal"`
	Notes     *string    `json:"notes" bson:"notes"`
	Status    ItemStatus `json:"status" bson:"status"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

func LineSubtotal(quantity int, unitPrice int64) int64 {
	return int64(quantity) * unitPrice
}

// AllServed reports whether every item has reached served. An empty list
// is never considered served.
func AllServed(items []OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		if it.Status != ItemServed {
			return false
		}
	}
	return true
}

// OrderPayload is the order half of a finalized draft.
type OrderPayload struct {
	TableID             *string     `json:"tableid"`
	CustomerName        string      `json:"customer_name,omitempty"`
	Status              OrderStatus `json:"status"`
	Total               int64       `json:"total"`
	PaymentMethod       string      `json:"payment_method,omitempty"`
	Priority            string      `json:"priority,omitempty"`
	EstimatedCompletion *time.Time  `json:"estimated_completion,omitempty"`
}

// OrderItemPayload is one line of a finalized draft.
type OrderItemPayload struct {
	ProductID string     `json:"productid"`
	Quantity  int        `json:"quantity"`
	UnitPrice int64      `json:"unit_price"`
	Subtotal  int64      `json:"subtotal"`
	Notes     *string    `json:"notes"`
	Status    ItemStatus `json:"status"`
}

type ItemUpdate struct {
	Status ItemStatus `json:"status"`
}

// OrderUpdate changes the status, the editable details, or both.
type OrderUpdate struct {
	Status    *OrderStatus  `json:"status,omitempty"`
	Details   *OrderPayload `json:"details,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Apply returns o with u applied.
func (u OrderUpdate) Apply(o Order) Order {
	if u.Details != nil {
		d := u.Details
		o.TableID = d.TableID
		o.CustomerName = d.CustomerName
		o.Status = d.Status
		o.Total = d.Total
		o.PaymentMethod = d.PaymentMethod
		o.Priority = d.Priority
		o.EstimatedCompletion = d.EstimatedCompletion
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if !u.UpdatedAt.IsZero() {
		o.UpdatedAt = u.UpdatedAt
	}
	return o
}

func StatusPtr(s OrderStatus) *OrderStatus { return &s }
