// Package mongostore implements store.Store on MongoDB collections.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clubpos/db"
	"clubpos/models"
	"clubpos/store"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	m   *db.Mongo
	now func() time.Time
}

func New(m *db.Mongo) *Store {
	return &Store{m: m, now: time.Now}
}

func (s *Store) Close(ctx context.Context) error { return s.m.Close(ctx) }

func notFound(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("mongostore: %s %s: %w", kind, id, err)
}

func (s *Store) FetchOrder(ctx context.Context, orderID string) (models.Order, error) {
	var o models.Order
	err := s.m.OrdersCollection.FindOne(ctx, bson.M{"orderid": orderID}).Decode(&o)
	if err != nil {
		return models.Order{}, notFound("order", orderID, err)
	}
	return o, nil
}

func (s *Store) FetchOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.m.OrderItemsCollection.Find(ctx, bson.M{"orderid": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: items of %s: %w", orderID, err)
	}
	items := []models.OrderItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("mongostore: decode items of %s: %w", orderID, err)
	}
	return items, nil
}

func (s *Store) UpdateOrderItem(ctx context.Context, itemID string, u models.ItemUpdate) (models.OrderItem, error) {
	if !u.Status.Valid() {
		return models.OrderItem{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, u.Status)
	}
	update := bson.M{"$set": bson.M{"status": u.Status, "updated_at": s.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var it models.OrderItem
	err := s.m.OrderItemsCollection.FindOneAndUpdate(ctx, bson.M{"itemid": itemID}, update, opts).Decode(&it)
	if err != nil {
		return models.OrderItem{}, notFound("order item", itemID, err)
	}
	return it, nil
}

func (s *Store) UpdateOrder(ctx context.Context, orderID string, u models.OrderUpdate) (models.Order, error) {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = s.now()
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var o models.Order
	err := s.m.OrdersCollection.FindOneAndUpdate(ctx, bson.M{"orderid": orderID}, bson.M{"$set": orderSet(u)}, opts).Decode(&o)
	if err != nil {
		return models.Order{}, notFound("order", orderID, err)
	}
	return o, nil
}

// orderSet builds the $set document for u. A status in u overrides the one
// in its details, as in models.OrderUpdate.Apply.
func orderSet(u models.OrderUpdate) bson.M {
	set := bson.M{"updated_at": u.UpdatedAt}
	if d := u.Details; d != nil {
		set["tableid"] = d.TableID
		set["customer_name"] = d.CustomerName
		set["status"] = d.Status
		set["total"] = d.Total
		set["payment_method"] = d.PaymentMethod
		set["priority"] = d.Priority
		set["estimated_completion"] = d.EstimatedCompletion
	}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	return set
}

func (s *Store) CreateOrder(ctx context.Context, p models.OrderPayload) (models.Order, error) {
	now := s.now()
	o := models.OrderUpdate{Details: &p}.Apply(models.Order{})
	o.OrderID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now

	if _, err := s.m.OrdersCollection.InsertOne(ctx, o); err != nil {
		return models.Order{}, fmt.Errorf("mongostore: insert order: %w", err)
	}
	return o, nil
}

func (s *Store) CreateOrderItem(ctx context.Context, orderID string, p models.OrderItemPayload) (models.OrderItem, error) {
	if _, err := s.FetchOrder(ctx, orderID); err != nil {
		return models.OrderItem{}, err
	}
	it := store.NewItem(orderID, p, s.now())
	if _, err := s.m.OrderItemsCollection.InsertOne(ctx, it); err != nil {
		return models.OrderItem{}, fmt.Errorf("mongostore: insert item: %w", err)
	}
	return it, nil
}

// itemCollection is the part of the order_items collection the item swap
// writes through.
type itemCollection interface {
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// ReplaceOrderItems swaps the lines of an order.
func (s *Store) ReplaceOrderItems(ctx context.Context, orderID string, items []models.OrderItemPayload) ([]models.OrderItem, error) {
	if _, err := s.FetchOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return replaceItems(ctx, s.m.OrderItemsCollection, orderID, items, s.now())
}

// replaceItems inserts the new lines before deleting the old ones, so a
// failed write leaves the previous lines in place. New lines that made it in
// before a failure are removed again. Served lines are never deleted.
func replaceItems(ctx context.Context, coll itemCollection, orderID string, items []models.OrderItemPayload, now time.Time) ([]models.OrderItem, error) {
	served, err := coll.CountDocuments(ctx, bson.M{"orderid": orderID, "status": models.ItemServed})
	if err != nil {
		return nil, fmt.Errorf("mongostore: count served of %s: %w", orderID, err)
	}
	if served > 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrServedItemsLocked)
	}

	out := make([]models.OrderItem, 0, len(items))
	docs := make([]any, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, p := range items {
		it := store.NewItem(orderID, p, now)
		out = append(out, it)
		docs = append(docs, it)
		ids = append(ids, it.ItemID)
	}

	undo := func(cause error) error {
		if len(ids) == 0 {
			return cause
		}
		_, err := coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"itemid": bson.M{"$in": ids}})
		if err != nil {
			return errors.Join(cause, fmt.Errorf("mongostore: remove new items of %s: %w", orderID, err))
		}
		return cause
	}

	if len(docs) > 0 {
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return nil, undo(fmt.Errorf("mongostore: insert items of %s: %w", orderID, err))
		}
	}

	stale := bson.M{
		"orderid": orderID,
		"itemid":  bson.M{"$nin": ids},
		"status":  bson.M{"$ne": models.ItemServed},
	}
	if _, err := coll.DeleteMany(ctx, stale); err != nil {
		return nil, undo(fmt.Errorf("mongostore: clear items of %s: %w", orderID, err))
	}
	return out, nil
}

func (s *Store) FetchProducts(ctx context.Context) ([]models.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	return findAll[models.Product](ctx, s.m.ProductsCollection, opts)
}

func (s *Store) FetchProductCategories(ctx context.Context) ([]models.ProductCategory, error) {
	return findAll[models.ProductCategory](ctx, s.m.ProductCategoriesCollection, options.Find())
}

func (s *Store) FetchTables(ctx context.Context) ([]models.Table, error) {
	return findAll[models.Table](ctx, s.m.TablesCollection, options.Find())
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, opts *options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", coll.Name(), err)
	}
	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decode %s: %w", coll.Name(), err)
	}
	return out, nil
}
