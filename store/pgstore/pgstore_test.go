package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"clubpos/models"
	"clubpos/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database when PGSTORE_TEST_DSN is set.
func connect(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PGSTORE_TEST_DSN")
	if dsn == "" {
		t.Skip("PGSTORE_TEST_DSN not set")
	}
	s, err := Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestOrderRoundTrip(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	table := "t7"
	o, err := s.CreateOrder(ctx, models.OrderPayload{TableID: &table, Status: models.OrderPending, Total: 25000})
	require.NoError(t, err)

	got, err := s.FetchOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got.TableID)
	assert.Equal(t, "t7", *got.TableID)

	it, err := s.CreateOrderItem(ctx, o.OrderID, models.OrderItemPayload{ProductID: "p1", Quantity: 2, UnitPrice: 12500})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), it.Subtotal)

	it, err = s.UpdateOrderItem(ctx, it.ItemID, models.ItemUpdate{Status: models.ItemServed})
	require.NoError(t, err)
	assert.Equal(t, models.ItemServed, it.Status)

	_, err = s.ReplaceOrderItems(ctx, o.OrderID, nil)
	assert.True(t, errors.Is(err, store.ErrServedItemsLocked))

	o, err = s.UpdateOrder(ctx, o.OrderID, models.OrderUpdate{Status: models.StatusPtr(models.OrderCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, o.Status)
	assert.Equal(t, int64(25000), o.Total)
}

func TestMissingOrder(t *testing.T) {
	s := connect(t)
	_, err := s.FetchOrder(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
