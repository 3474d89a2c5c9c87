package orders

import (
	"context"
	"errors"
	"testing"

	"clubpos/cart"
	"clubpos/models"
	"clubpos/mq"
	"clubpos/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("store unavailable")

// flakyStore fails the n-th item create, or every replace.
type flakyStore struct {
	*store.Memory
	failItemAt  int
	failReplace bool
	itemCalls   int
	created     []string
}

func (s *flakyStore) CreateOrder(ctx context.Context, p models.OrderPayload) (models.Order, error) {
	o, err := s.Memory.CreateOrder(ctx, p)
	if err == nil {
		s.created = append(s.created, o.OrderID)
	}
	return o, err
}

func (s *flakyStore) CreateOrderItem(ctx context.Context, orderID string, p models.OrderItemPayload) (models.OrderItem, error) {
	s.itemCalls++
	if s.itemCalls == s.failItemAt {
		return models.OrderItem{}, errUnavailable
	}
	return s.Memory.CreateOrderItem(ctx, orderID, p)
}

func (s *flakyStore) ReplaceOrderItems(ctx context.Context, orderID string, items []models.OrderItemPayload) ([]models.OrderItem, error) {
	if s.failReplace {
		return nil, errUnavailable
	}
	return s.Memory.ReplaceOrderItems(ctx, orderID, items)
}

var products = []models.Product{
	{ProductID: "a", Name: "Gin tonic", Price: 12000, Available: true},
	{ProductID: "b", Name: "Nachos", Price: 15000, Available: true},
}

func draftOf(t *testing.T, c cart.Cart, editing *models.Order) cart.Draft {
	t.Helper()
	d, err := c.Finalize(cart.IndexProducts(products), editing)
	require.NoError(t, err)
	return d
}

func TestSubmitCreatesOrder(t *testing.T) {
	mem := store.NewMemory()
	events := &mq.Recorder{}
	svc := NewService(mem, events)

	order, items, err := svc.Submit(context.Background(), draftOf(t, cart.New().SetQuantity("a", 2).SetQuantity("b", 1), nil), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, int64(39000), order.Total)
	require.Len(t, items, 2)

	stored, err := mem.FetchOrderItems(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, []string{mq.EventOrderCreated}, events.Names())
}

func TestSubmitCancelsOrderWhenItemWriteFails(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), failItemAt: 2}
	events := &mq.Recorder{}
	svc := NewService(fs, events)

	_, _, err := svc.Submit(context.Background(), draftOf(t, cart.New().SetQuantity("a", 1).SetQuantity("b", 1), nil), nil)
	require.ErrorIs(t, err, errUnavailable)
	assert.Empty(t, events.Names())

	// the order that was created must now be cancelled
	require.Len(t, fs.created, 1)
	var cancelled int
	for _, id := range fs.created {
		o, err := fs.FetchOrder(context.Background(), id)
		require.NoError(t, err)
		if o.Status == models.OrderCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestSubmitEmptyDraft(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	_, _, err := svc.Submit(context.Background(), cart.Draft{}, nil)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func seededOrder(t *testing.T, mem *store.Memory, status models.ItemStatus) (models.Order, []models.OrderItem) {
	t.Helper()
	table := "t1"
	order := models.Order{OrderID: "o1", TableID: &table, Status: models.OrderPreparing, Total: 12000, PaymentMethod: "card"}
	items := []models.OrderItem{
		{ItemID: "i1", OrderID: "o1", ProductID: "a", Quantity: 1, UnitPrice: 12000, Subtotal: 12000, Status: status},
	}
	mem.PutOrder(order, items...)
	return order, items
}

func TestSubmitEditReplacesItems(t *testing.T) {
	mem := store.NewMemory()
	order, items := seededOrder(t, mem, models.ItemPreparing)
	events := &mq.Recorder{}
	svc := NewService(mem, events)

	c := cart.InitializeFromExistingOrder(order, items).SetQuantity("b", 1)
	updated, newItems, err := svc.Submit(context.Background(), draftOf(t, c, &order), &order)
	require.NoError(t, err)

	assert.Equal(t, "o1", updated.OrderID)
	assert.Equal(t, int64(27000), updated.Total)
	assert.Equal(t, models.OrderPreparing, updated.Status)
	assert.Equal(t, "card", updated.PaymentMethod)
	require.Len(t, newItems, 2)
	assert.Equal(t, []string{mq.EventOrderUpdated}, events.Names())
}

func TestSubmitEditWithServedItemsRestoresDetails(t *testing.T) {
	mem := store.NewMemory()
	order, items := seededOrder(t, mem, models.ItemServed)
	svc := NewService(mem, nil)

	c := cart.InitializeFromExistingOrder(order, items).SetQuantity("b", 2).WithTable(cart.Takeaway)
	_, _, err := svc.Submit(context.Background(), draftOf(t, c, &order), &order)
	require.ErrorIs(t, err, store.ErrServedItemsLocked)

	got, err := mem.FetchOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got.Total)
	require.NotNil(t, got.TableID)
	assert.Equal(t, "t1", *got.TableID)
}

func TestSubmitEditReplaceFailure(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), failReplace: true}
	order, items := seededOrder(t, fs.Memory, models.ItemPending)
	svc := NewService(fs, nil)

	c := cart.InitializeFromExistingOrder(order, items).SetQuantity("a", 3)
	_, _, err := svc.Submit(context.Background(), draftOf(t, c, &order), &order)
	require.ErrorIs(t, err, errUnavailable)

	got, err := fs.FetchOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got.Total)
	stored, err := fs.FetchOrderItems(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, items, stored)
}
