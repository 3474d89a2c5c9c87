package orders

import (
	"context"
	"errors"
	"fmt"

	"clubpos/cart"
	"clubpos/journal"
	"clubpos/models"
	"clubpos/mq"
	"clubpos/optimistic"
	"clubpos/store"
)

// Service writes finalized drafts to the order store.
type Service struct {
	store  store.Orders
	events mq.Publisher
}

func NewService(s store.Orders, events mq.Publisher) *Service {
	if events == nil {
		events = mq.Discard{}
	}
	return &Service{store: s, events: events}
}

// Submit creates a new order from d, or replaces order editing with d.
//
// A new order is written first and its items one by one; if an item write
// fails the order is cancelled. An edit updates the order details and then
// swaps the items; if the swap fails the previous details are written back.
func (s *Service) Submit(ctx context.Context, d cart.Draft, editing *models.Order) (models.Order, []models.OrderItem, error) {
	if len(d.Items) == 0 {
		return models.Order{}, nil, cart.ErrEmptyCart
	}
	if editing != nil {
		return s.replace(ctx, d, *editing)
	}
	return s.create(ctx, d)
}

func (s *Service) create(ctx context.Context, d cart.Draft) (models.Order, []models.OrderItem, error) {
	tx := optimistic.Begin("submit order")

	var order models.Order
	err := tx.Do(ctx, optimistic.Step{
		Name: "create order",
		Execute: func(ctx context.Context) error {
			var err error
			order, err = s.store.CreateOrder(ctx, d.Order)
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := s.store.UpdateOrder(ctx, order.OrderID, models.OrderUpdate{Status: models.StatusPtr(models.OrderCancelled)})
			return err
		},
	})
	if err != nil {
		return models.Order{}, nil, fmt.Errorf("orders: %w", err)
	}

	items := make([]models.OrderItem, 0, len(d.Items))
	for i, p := range d.Items {
		err := tx.Do(ctx, optimistic.Step{
			Name: fmt.Sprintf("create item %d", i+1),
			Execute: func(ctx context.Context) error {
				it, err := s.store.CreateOrderItem(ctx, order.OrderID, p)
				if err == nil {
					items = append(items, it)
				}
				return err
			},
		})
		if err != nil {
			compErrs := tx.Rollback(context.WithoutCancel(ctx))
			return models.Order{}, nil, fmt.Errorf("orders: %w", errors.Join(append([]error{err}, compErrs...)...))
		}
	}
	tx.Commit()

	mq.Emit(ctx, s.events, mq.Event{
		Name: mq.EventOrderCreated, OrderID: order.OrderID,
		Status: string(order.Status), EmployeeID: journal.EmployeeFrom(ctx),
	})
	return order, items, nil
}

func detailsOf(o models.Order) models.OrderPayload {
	return models.OrderPayload{
		TableID:             o.TableID,
		CustomerName:        o.CustomerName,
		Status:              o.Status,
		Total:               o.Total,
		PaymentMethod:       o.PaymentMethod,
		Priority:            o.Priority,
		EstimatedCompletion: o.EstimatedCompletion,
	}
}

func (s *Service) replace(ctx context.Context, d cart.Draft, editing models.Order) (models.Order, []models.OrderItem, error) {
	tx := optimistic.Begin("edit order")
	previous := detailsOf(editing)

	var order models.Order
	err := tx.Do(ctx, optimistic.Step{
		Name: "update order details",
		Execute: func(ctx context.Context) error {
			var err error
			order, err = s.store.UpdateOrder(ctx, editing.OrderID, models.OrderUpdate{Details: &d.Order})
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := s.store.UpdateOrder(ctx, editing.OrderID, models.OrderUpdate{Details: &previous})
			return err
		},
	})
	if err != nil {
		return models.Order{}, nil, fmt.Errorf("orders: %w", err)
	}

	var items []models.OrderItem
	err = tx.Do(ctx, optimistic.Step{
		Name: "replace order items",
		Execute: func(ctx context.Context) error {
			var err error
			items, err = s.store.ReplaceOrderItems(ctx, editing.OrderID, d.Items)
			return err
		},
	})
	if err != nil {
		compErrs := tx.Rollback(context.WithoutCancel(ctx))
		return models.Order{}, nil, fmt.Errorf("orders: %w", errors.Join(append([]error{err}, compErrs...)...))
	}
	tx.Commit()

	mq.Emit(ctx, s.events, mq.Event{
		Name: mq.EventOrderUpdated, OrderID: order.OrderID,
		Status: string(order.Status), EmployeeID: journal.EmployeeFrom(ctx),
	})
	return order, items, nil
}
