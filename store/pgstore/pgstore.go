// Package pgstore implements store.Store on PostgreSQL through pgxpool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clubpos/models"
	"clubpos/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS product_categories (
	category_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	product_id  TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price       BIGINT NOT NULL CHECK (price >= 0),
	category_id TEXT NOT NULL DEFAULT '',
	available   BOOLEAN NOT NULL DEFAULT TRUE,
	image       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tables (
	table_id TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	seats    INT NOT NULL DEFAULT 0,
	status   TEXT NOT NULL DEFAULT 'free'
);
CREATE TABLE IF NOT EXISTS orders (
	order_id             TEXT PRIMARY KEY,
	table_id             TEXT,
	customer_name        TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL,
	total                BIGINT NOT NULL DEFAULT 0,
	payment_method       TEXT NOT NULL DEFAULT '',
	priority             TEXT NOT NULL DEFAULT '',
	estimated_completion TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items (
	item_id    TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
	product_id TEXT NOT NULL,
	quantity   INT NOT NULL CHECK (quantity > 0),
	unit_price BIGINT NOT NULL,
	subtotal   BIGINT NOT NULL,
	notes      TEXT,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id, created_at);
`

const orderColumns = `order_id, table_id, customer_name, status, total, payment_method, priority, estimated_completion, created_at, updated_at`
const itemColumns = `item_id, order_id, product_id, quantity, unit_price, subtotal, notes, status, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect opens a pool, pings it and applies the schema.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("pgstore: %s %s: %w", kind, id, err)
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var o models.Order
	var status string
	err := row.Scan(&o.OrderID, &o.TableID, &o.CustomerName, &status, &o.Total,
		&o.PaymentMethod, &o.Priority, &o.EstimatedCompletion, &o.CreatedAt, &o.UpdatedAt)
	o.Status = models.OrderStatus(status)
	return o, err
}

func scanItem(row pgx.Row) (models.OrderItem, error) {
	var it models.OrderItem
	var status string
	err := row.Scan(&it.ItemID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
		&it.Subtotal, &it.Notes, &status, &it.CreatedAt, &it.UpdatedAt)
	it.Status = models.ItemStatus(status)
	return it, err
}

func (s *Store) FetchOrder(ctx context.Context, orderID string) (models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		return models.Order{}, notFound("order", orderID, err)
	}
	return o, nil
}

func (s *Store) FetchOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY created_at, item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: items of %s: %w", orderID, err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) UpdateOrderItem(ctx context.Context, itemID string, u models.ItemUpdate) (models.OrderItem, error) {
	if !u.Status.Valid() {
		return models.OrderItem{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, u.Status)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE order_items SET status = $2, updated_at = $3 WHERE item_id = $1 RETURNING `+itemColumns,
		itemID, string(u.Status), s.now())
	it, err := scanItem(row)
	if err != nil {
		return models.OrderItem{}, notFound("order item", itemID, err)
	}
	return it, nil
}

func (s *Store) UpdateOrder(ctx context.Context, orderID string, u models.OrderUpdate) (models.Order, error) {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = s.now()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return models.Order{}, notFound("order", orderID, err)
	}
	o := u.Apply(current)
	_, err = tx.Exec(ctx, `
		UPDATE orders SET table_id = $2, customer_name = $3, status = $4, total = $5,
			payment_method = $6, priority = $7, estimated_completion = $8, updated_at = $9
		WHERE order_id = $1`,
		o.OrderID, o.TableID, o.CustomerName, string(o.Status), o.Total,
		o.PaymentMethod, o.Priority, o.EstimatedCompletion, o.UpdatedAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("pgstore: update order %s: %w", orderID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("pgstore: commit: %w", err)
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, p models.OrderPayload) (models.Order, error) {
	now := s.now()
	o := models.OrderUpdate{Details: &p}.Apply(models.Order{})
	o.OrderID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.OrderID, o.TableID, o.CustomerName, string(o.Status), o.Total,
		o.PaymentMethod, o.Priority, o.EstimatedCompletion, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return models.Order{}, fmt.Errorf("pgstore: insert order: %w", err)
	}
	return o, nil
}

func insertItem(ctx context.Context, tx pgx.Tx, it models.OrderItem) error {
	_, err := tx.Exec(ctx, `INSERT INTO order_items (`+itemColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		it.ItemID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice,
		it.Subtotal, it.Notes, string(it.Status), it.CreatedAt, it.UpdatedAt)
	return err
}

func (s *Store) CreateOrderItem(ctx context.Context, orderID string, p models.OrderItemPayload) (models.OrderItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.OrderItem{}, fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, orderID).Scan(&exists); err != nil {
		return models.OrderItem{}, fmt.Errorf("pgstore: order %s: %w", orderID, err)
	}
	if !exists {
		return models.OrderItem{}, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	it := store.NewItem(orderID, p, s.now())
	if err := insertItem(ctx, tx, it); err != nil {
		return models.OrderItem{}, fmt.Errorf("pgstore: insert item: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.OrderItem{}, fmt.Errorf("pgstore: commit: %w", err)
	}
	return it, nil
}

// ReplaceOrderItems swaps the lines of an order in one transaction while
// holding the order row lock.
func (s *Store) ReplaceOrderItems(ctx context.Context, orderID string, items []models.OrderItemPayload) ([]models.OrderItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err := tx.QueryRow(ctx, `SELECT order_id FROM orders WHERE order_id = $1 FOR UPDATE`, orderID).Scan(&locked); err != nil {
		return nil, notFound("order", orderID, err)
	}
	var served int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM order_items WHERE order_id = $1 AND status = $2`,
		orderID, string(models.ItemServed)).Scan(&served)
	if err != nil {
		return nil, fmt.Errorf("pgstore: count served of %s: %w", orderID, err)
	}
	if served > 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrServedItemsLocked)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("pgstore: clear items of %s: %w", orderID, err)
	}

	now := s.now()
	out := make([]models.OrderItem, 0, len(items))
	for i, p := range items {
		// keep insertion order stable under ORDER BY created_at
		it := store.NewItem(orderID, p, now.Add(time.Duration(i)*time.Microsecond))
		if err := insertItem(ctx, tx, it); err != nil {
			return nil, fmt.Errorf("pgstore: insert item: %w", err)
		}
		out = append(out, it)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: commit: %w", err)
	}
	return out, nil
}

func (s *Store) FetchProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT product_id, name, price, category_id, available, image FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Product, error) {
		var p models.Product
		err := row.Scan(&p.ProductID, &p.Name, &p.Price, &p.CategoryID, &p.Available, &p.Image)
		return p, err
	})
}

func (s *Store) FetchProductCategories(ctx context.Context) ([]models.ProductCategory, error) {
	rows, err := s.pool.Query(ctx, `SELECT category_id, name FROM product_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ProductCategory, error) {
		var c models.ProductCategory
		err := row.Scan(&c.CategoryID, &c.Name)
		return c, err
	})
}

func (s *Store) FetchTables(ctx context.Context) ([]models.Table, error) {
	rows, err := s.pool.Query(ctx, `SELECT table_id, name, seats, status FROM tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: tables: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Table, error) {
		var t models.Table
		err := row.Scan(&t.TableID, &t.Name, &t.Seats, &t.Status)
		return t, err
	})
}
