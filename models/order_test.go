package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatusNext(t *testing.T) {
	cases := []struct {
		from ItemStatus
		want ItemStatus
		ok   bool
	}{
		{ItemPending, ItemPreparing, true},
		{ItemPreparing, ItemReady, true},
		{ItemReady, ItemServed, true},
		{ItemServed, "", false},
		{ItemStatus("cooking"), "", false},
	}
	for _, c := range cases {
		got, ok := c.from.Next()
		assert.Equal(t, c.ok, ok, "from %q", c.from)
		assert.Equal(t, c.want, got, "from %q", c.from)
	}
}

func TestParseItemStatus(t *testing.T) {
	s, err := ParseItemStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, ItemReady, s)

	_, err = ParseItemStatus("completed")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, OrderCompleted.Valid())
	assert.True(t, OrderCancelled.Valid())
	assert.False(t, OrderStatus("archived").Valid())
}

func TestAllServed(t *testing.T) {
	served := OrderItem{Status: ItemServed}
	preparing := OrderItem{Status: ItemPreparing}

	assert.True(t, AllServed([]OrderItem{served, served, served}))
	assert.False(t, AllServed([]OrderItem{served, preparing, served}))
	assert.False(t, AllServed(nil))
}

func TestOrderUpdateApply(t *testing.T) {
	table := "t-4"
	base := Order{OrderID: "o1", Status: OrderPending, Total: 100, PaymentMethod: "card"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := OrderUpdate{Status: StatusPtr(OrderCompleted), UpdatedAt: at}.Apply(base)
	assert.Equal(t, OrderCompleted, got.Status)
	assert.Equal(t, at, got.UpdatedAt)
	assert.Equal(t, "card", got.PaymentMethod)

	got = OrderUpdate{Details: &OrderPayload{TableID: &table, Status: OrderPreparing, Total: 250}}.Apply(base)
	assert.Equal(t, "t-4", *got.TableID)
	assert.Equal(t, int64(250), got.Total)
	assert.Equal(t, OrderPreparing, got.Status)
	assert.Empty(t, got.PaymentMethod)
}
