package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clubpos/models"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. It is used when no database is configured
// and as the backend in tests.
type Memory struct {
	mu         sync.RWMutex
	orders     map[string]models.Order
	items      map[string]models.OrderItem
	itemOrder  []string
	products   []models.Product
	categories []models.ProductCategory
	tables     []models.Table
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders: make(map[string]models.Order),
		items:  make(map[string]models.OrderItem),
		now:    time.Now,
	}
}

// SeedCatalog replaces the reference data.
func (m *Memory) SeedCatalog(products []models.Product, categories []models.ProductCategory, tables []models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append([]models.Product(nil), products...)
	m.categories = append([]models.ProductCategory(nil), categories...)
	m.tables = append([]models.Table(nil), tables...)
}

// PutOrder stores an order and its items as-is.
func (m *Memory) PutOrder(o models.Order, items ...models.OrderItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderID] = o
	for _, it := range items {
		if _, ok := m.items[it.ItemID]; !ok {
			m.itemOrder = append(m.itemOrder, it.ItemID)
		}
		m.items[it.ItemID] = it
	}
}

func (m *Memory) FetchOrder(_ context.Context, orderID string) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, nil
}

func (m *Memory) FetchOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsOf(orderID), nil
}

func (m *Memory) itemsOf(orderID string) []models.OrderItem {
	out := []models.OrderItem{}
	for _, id := range m.itemOrder {
		if it, ok := m.items[id]; ok && it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (m *Memory) UpdateOrderItem(_ context.Context, itemID string, u models.ItemUpdate) (models.OrderItem, error) {
	if !u.Status.Valid() {
		return models.OrderItem{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, u.Status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return models.OrderItem{}, fmt.Errorf("order item %s: %w", itemID, ErrNotFound)
	}
	it.Status = u.Status
	it.UpdatedAt = m.now()
	m.items[itemID] = it
	return it, nil
}

func (m *Memory) UpdateOrder(_ context.Context, orderID string, u models.OrderUpdate) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = m.now()
	}
	o = u.Apply(o)
	m.orders[orderID] = o
	return o, nil
}

func (m *Memory) CreateOrder(_ context.Context, p models.OrderPayload) (models.Order, error) {
	now := m.now()
	o := models.OrderUpdate{Details: &p}.Apply(models.Order{})
	o.OrderID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderID] = o
	return o, nil
}

func (m *Memory) CreateOrderItem(_ context.Context, orderID string, p models.OrderItemPayload) (models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return models.OrderItem{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	it := NewItem(orderID, p, m.now())
	m.items[it.ItemID] = it
	m.itemOrder = append(m.itemOrder, it.ItemID)
	return it, nil
}

func (m *Memory) ReplaceOrderItems(_ context.Context, orderID string, items []models.OrderItemPayload) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	existing := m.itemsOf(orderID)
	for _, it := range existing {
		if it.Status == models.ItemServed {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrServedItemsLocked)
		}
	}
	for _, it := range existing {
		delete(m.items, it.ItemID)
	}
	live := m.itemOrder[:0]
	for _, id := range m.itemOrder {
		if _, ok := m.items[id]; ok {
			live = append(live, id)
		}
	}
	m.itemOrder = live
	now := m.now()
	out := make([]models.OrderItem, 0, len(items))
	for _, p := range items {
		it := NewItem(orderID, p, now)
		m.items[it.ItemID] = it
		m.itemOrder = append(m.itemOrder, it.ItemID)
		out = append(out, it)
	}
	return out, nil
}

func (m *Memory) FetchProducts(context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Product{}, m.products...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) FetchProductCategories(context.Context) ([]models.ProductCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ProductCategory{}, m.categories...), nil
}

func (m *Memory) FetchTables(context.Context) ([]models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Table{}, m.tables...), nil
}

// NewItem builds a persisted line from a payload. Subtotal is recomputed so
// the stored line always satisfies the quantity × unit price identity.
func NewItem(orderID string, p models.OrderItemPayload, now time.Time) models.OrderItem {
	status := p.Status
	if status == "" {
		status = models.ItemPending
	}
	return models.OrderItem{
		ItemID:    uuid.NewString(),
		OrderID:   orderID,
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice,
		Subtotal:  models.LineSubtotal(p.Quantity, p.UnitPrice),
		Notes:     p.Notes,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

