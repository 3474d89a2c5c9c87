package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo holds the client and the collections the POS backend reads and writes.
type Mongo struct {
	Client *mongo.Client

	OrdersCollection            *mongo.Collection
	OrderItemsCollection        *mongo.Collection
	ProductsCollection          *mongo.Collection
	ProductCategoriesCollection *mongo.Collection
	TablesCollection            *mongo.Collection
}

// Connect dials MongoDB, pings the primary and ensures the indexes exist.
func Connect(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	database := client.Database(dbName)
	m := &Mongo{
		Client:                      client,
		OrdersCollection:            database.Collection("orders"),
		OrderItemsCollection:        database.Collection("order_items"),
		ProductsCollection:          database.Collection("products"),
		ProductCategoriesCollection: database.Collection("product_categories"),
		TablesCollection:            database.Collection("tables"),
	}
	if err := m.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) CreateIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.OrdersCollection, mongo.IndexModel{Keys: bson.D{{Key: "orderid", Value: 1}}, Options: unique}},
		{m.OrderItemsCollection, mongo.IndexModel{Keys: bson.D{{Key: "itemid", Value: 1}}, Options: unique}},
		{m.OrderItemsCollection, mongo.IndexModel{Keys: bson.D{{Key: "orderid", Value: 1}, {Key: "created_at", Value: 1}}}},
		{m.ProductsCollection, mongo.IndexModel{Keys: bson.D{{Key: "productid", Value: 1}}, Options: unique}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return fmt.Errorf("db: index on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
