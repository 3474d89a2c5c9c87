package cart

import (
	"clubpos/models"
)

const unknownProduct = "unknown"

// Catalog indexes products by id for price and name lookups.
type Catalog map[string]models.Product

func IndexProducts(products []models.Product) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.ProductID] = p
	}
	return c
}

// UnitPrice is the pinned price of e, or the current catalog price. A
// product missing from the catalog is priced at zero.
func (cat Catalog) UnitPrice(e Entry) int64 {
	if e.PriceOverride != nil {
		return *e.PriceOverride
	}
	return cat[e.ProductID].Price
}

func (cat Catalog) Name(productID string) string {
	if p, ok := cat[productID]; ok {
		return p.Name
	}
	return unknownProduct
}

func (c Cart) Subtotal(cat Catalog) int64 {
	var total int64
	for _, e := range c.Entries() {
		total += models.LineSubtotal(e.Quantity, cat.UnitPrice(e))
	}
	return total
}

func (c Cart) Total(cat Catalog) int64 {
	return c.Subtotal(cat) - c.discount + c.tax
}

// Line is the display form of a cart entry.
type Line struct {
	ProductID string `json:"productid"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
	Notes     string `json:"notes,omitempty"`
	Pinned    bool   `json:"pinned,omitempty"`
}

func (c Cart) Lines(cat Catalog) []Line {
	out := make([]Line, 0, c.Len())
	for _, e := range c.Entries() {
		price := cat.UnitPrice(e)
		out = append(out, Line{
			ProductID: e.ProductID,
			Name:      cat.Name(e.ProductID),
			Quantity:  e.Quantity,
			UnitPrice: price,
			Subtotal:  models.LineSubtotal(e.Quantity, price),
			Notes:     e.Notes,
			Pinned:    e.PriceOverride != nil,
		})
	}
	return out
}

// Summary is the full display state of a cart.
type Summary struct {
	Lines        []Line  `json:"lines"`
	Subtotal     int64   `json:"subtotal"`
	Discount     int64   `json:"discount"`
	Tax          int64   `json:"tax"`
	Total        int64   `json:"total"`
	TableID      *string `json:"tableid"`
	CustomerName string  `json:"customer_name,omitempty"`
}

func (c Cart) Summarize(cat Catalog) Summary {
	sub := c.Subtotal(cat)
	return Summary{
		Lines:        c.Lines(cat),
		Subtotal:     sub,
		Discount:     c.discount,
		Tax:          c.tax,
		Total:        sub - c.discount + c.tax,
		TableID:      c.TableID(),
		CustomerName: c.customerName,
	}
}

// Draft is a finalized cart, ready to be written to the order store.
type Draft struct {
	Order models.OrderPayload       `json:"order"`
	Items []models.OrderItemPayload `json:"items"`
}

// Finalize turns the cart into order and item payloads. editing is the
// order being edited, or nil for a new order; its status, payment method,
// priority and estimated completion are carried over unchanged.
func (c Cart) Finalize(cat Catalog, editing *models.Order) (Draft, error) {
	if c.IsEmpty() {
		return Draft{}, ErrEmptyCart
	}

	order := models.OrderPayload{
		TableID:      c.TableID(),
		CustomerName: c.customerName,
		Status:       models.OrderPending,
		Total:        c.Total(cat),
	}
	if editing != nil {
		order.Status = editing.Status
		order.PaymentMethod = editing.PaymentMethod
		order.Priority = editing.Priority
		order.EstimatedCompletion = editing.EstimatedCompletion
	}

	items := make([]models.OrderItemPayload, 0, c.Len())
	for _, e := range c.Entries() {
		price := cat.UnitPrice(e)
		var notes *string
		if e.Notes != "" {
			n := e.Notes
			notes = &n
		}
		items = append(items, models.OrderItemPayload{
			ProductID: e.ProductID,
			Quantity:  e.Quantity,
			UnitPrice: price,
			Subtotal:  models.LineSubtotal(e.Quantity, price),
			Notes:     notes,
			Status:    models.ItemPending,
		})
	}
	return Draft{Order: order, Items: items}, nil
}
