package mongostore

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"clubpos/models"
	"clubpos/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errWrite = errors.New("write concern error")

// fakeItems evaluates the filters replaceItems sends against a slice.
type fakeItems struct {
	items []models.OrderItem
	// insertOK is how many documents InsertMany stores before failing; -1
	// stores all of them.
	insertOK   int
	failDelete bool
}

func (f *fakeItems) CountDocuments(_ context.Context, filter any, _ ...*options.CountOptions) (int64, error) {
	m := filter.(bson.M)
	var n int64
	for _, it := range f.items {
		if it.OrderID == m["orderid"] && it.Status == m["status"] {
			n++
		}
	}
	return n, nil
}

func (f *fakeItems) InsertMany(_ context.Context, docs []any, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	for i, d := range docs {
		if f.insertOK >= 0 && i >= f.insertOK {
			return nil, errWrite
		}
		f.items = append(f.items, d.(models.OrderItem))
	}
	return &mongo.InsertManyResult{}, nil
}

func (f *fakeItems) DeleteMany(_ context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	m := filter.(bson.M)
	idCond := m["itemid"].(bson.M)
	if in, ok := idCond["$in"]; ok {
		ids := in.([]string)
		f.items = slices.DeleteFunc(f.items, func(it models.OrderItem) bool { return slices.Contains(ids, it.ItemID) })
		return &mongo.DeleteResult{}, nil
	}
	if f.failDelete {
		return nil, errWrite
	}
	keep := idCond["$nin"].([]string)
	f.items = slices.DeleteFunc(f.items, func(it models.OrderItem) bool {
		return it.OrderID == m["orderid"] && !slices.Contains(keep, it.ItemID) && it.Status != models.ItemServed
	})
	return &mongo.DeleteResult{}, nil
}

func (f *fakeItems) ids() []string {
	var out []string
	for _, it := range f.items {
		out = append(out, it.ItemID)
	}
	return out
}

func existing() []models.OrderItem {
	return []models.OrderItem{
		{ItemID: "i1", OrderID: "o1", ProductID: "a", Quantity: 1, Status: models.ItemPreparing},
		{ItemID: "i2", OrderID: "o1", ProductID: "b", Quantity: 2, Status: models.ItemPending},
		{ItemID: "x1", OrderID: "o2", ProductID: "a", Quantity: 1, Status: models.ItemPending},
	}
}

var newLines = []models.OrderItemPayload{
	{ProductID: "a", Quantity: 3, UnitPrice: 100},
	{ProductID: "c", Quantity: 1, UnitPrice: 250},
}

func TestNotFoundMapping(t *testing.T) {
	err := notFound("order", "o1", mongo.ErrNoDocuments)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.EqualError(t, err, "order o1: not found")

	other := errors.New("socket closed")
	err = notFound("order", "o1", other)
	assert.False(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(err, other))
}

func TestReplaceItemsSwapsLines(t *testing.T) {
	f := &fakeItems{items: existing(), insertOK: -1}
	got, err := replaceItems(context.Background(), f, "o1", newLines, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.ElementsMatch(t, []string{"x1", got[0].ItemID, got[1].ItemID}, f.ids())
	assert.Equal(t, int64(300), got[0].Subtotal)
}

func TestReplaceItemsInsertFailureKeepsOldLines(t *testing.T) {
	for _, ok := range []int{0, 1} {
		f := &fakeItems{items: existing(), insertOK: ok}
		_, err := replaceItems(context.Background(), f, "o1", newLines, time.Now())
		require.ErrorIs(t, err, errWrite)
		assert.Equal(t, []string{"i1", "i2", "x1"}, f.ids(), "%d partial inserts are removed", ok)
	}
}

func TestReplaceItemsDeleteFailureRemovesNewLines(t *testing.T) {
	f := &fakeItems{items: existing(), insertOK: -1, failDelete: true}
	_, err := replaceItems(context.Background(), f, "o1", newLines, time.Now())
	require.ErrorIs(t, err, errWrite)
	assert.Equal(t, []string{"i1", "i2", "x1"}, f.ids())
}

func TestReplaceItemsRefusesServedOrder(t *testing.T) {
	items := existing()
	items[0].Status = models.ItemServed
	f := &fakeItems{items: items, insertOK: -1}

	_, err := replaceItems(context.Background(), f, "o1", newLines, time.Now())
	require.ErrorIs(t, err, store.ErrServedItemsLocked)
	assert.Len(t, f.items, 3)
}

func TestOrderSet(t *testing.T) {
	at := time.Date(2026, 10, 1, 21, 0, 0, 0, time.UTC)
	table := "t3"

	set := orderSet(models.OrderUpdate{Status: models.StatusPtr(models.OrderCompleted), UpdatedAt: at})
	assert.Equal(t, bson.M{"status": models.OrderCompleted, "updated_at": at}, set)

	set = orderSet(models.OrderUpdate{
		Details:   &models.OrderPayload{TableID: &table, Status: models.OrderPreparing, Total: 4200, CustomerName: "Lu"},
		UpdatedAt: at,
	})
	assert.Equal(t, models.OrderPreparing, set["status"])
	assert.Equal(t, int64(4200), set["total"])
	assert.Equal(t, &table, set["tableid"])
	assert.Equal(t, "Lu", set["customer_name"])
	assert.Contains(t, set, "estimated_completion")

	set = orderSet(models.OrderUpdate{
		Details: &models.OrderPayload{Status: models.OrderPreparing},
		Status:  models.StatusPtr(models.OrderCancelled),
	})
	assert.Equal(t, models.OrderCancelled, set["status"], "explicit status wins over details")
}
