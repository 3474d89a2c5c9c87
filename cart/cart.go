// Package cart builds draft orders from product selections.
//
// Cart is a value: every mutation returns a new Cart and leaves the receiver
// untouched, so a caller can keep the previous value to undo a change.
package cart

import (
	"errors"
	"math"
	"strings"

	"clubpos/models"
)

// Takeaway selects no table.
const Takeaway = "takeaway"

var (
	ErrEmptyCart          = errors.New("cart: add at least one item before submitting")
	ErrNegativeAdjustment = errors.New("cart: discount and tax cannot be negative")
)

// Entry is one product line of a cart.
type Entry struct {
	ProductID string `json:"productid"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
	// PriceOverride pins the unit price. Set for lines taken from an
	// existing order so an edit never reprices what was already sold.
	PriceOverride *int64 `json:"price_override,omitempty"`
}

type Cart struct {
	ids          []string
	entries      map[string]Entry
	discount     int64
	tax          int64
	tableID      *string
	customerName string
}

func New() Cart {
	return Cart{}
}

func (c Cart) clone() Cart {
	out := c
	out.ids = append([]string(nil), c.ids...)
	out.entries = make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out.entries[k] = v
	}
	if c.tableID != nil {
		t := *c.tableID
		out.tableID = &t
	}
	return out
}

func (c *Cart) put(e Entry) {
	if _, ok := c.entries[e.ProductID]; !ok {
		c.ids = append(c.ids, e.ProductID)
	}
	c.entries[e.ProductID] = e
}

func (c *Cart) remove(productID string) {
	if _, ok := c.entries[productID]; !ok {
		return
	}
	delete(c.entries, productID)
	for i, id := range c.ids {
		if id == productID {
			c.ids = append(c.ids[:i:i], c.ids[i+1:]...)
			break
		}
	}
}

// InitializeFromExistingOrder seeds a cart for editing order. Items sharing
// a product are merged: quantities are summed, non-empty notes are joined
// with newlines and the unit price of the first item is pinned.
//
// Discount and tax are not stored on an order, so they are inferred from the
// difference between the stored total T and the rebuilt subtotal S: a
// shortfall becomes the discount and an excess becomes the tax. An order that
// had both cannot be rebuilt exactly.
func InitializeFromExistingOrder(order models.Order, items []models.OrderItem) Cart {
	c := New().clone()
	notes := map[string][]string{}
	for _, it := range items {
		e, ok := c.entries[it.ProductID]
		if !ok {
			price := it.UnitPrice
			e = Entry{ProductID: it.ProductID, PriceOverride: &price}
		}
		e.Quantity += it.Quantity
		if it.Notes != nil && strings.TrimSpace(*it.Notes) != "" {
			notes[it.ProductID] = append(notes[it.ProductID], *it.Notes)
		}
		c.put(e)
	}
	for id, n := range notes {
		e := c.entries[id]
		e.Notes = strings.Join(n, "\n")
		c.entries[id] = e
	}
	for _, id := range append([]string(nil), c.ids...) {
		if c.entries[id].Quantity <= 0 {
			c.remove(id)
		}
	}

	s := c.Subtotal(nil)
	if d := s - order.Total; d > 0 {
		c.discount = d
	}
	if t := order.Total - s; t > 0 {
		c.tax = t
	}
	if order.TableID != nil {
		t := *order.TableID
		c.tableID = &t
	}
	c.customerName = order.CustomerName
	return c
}

// SetQuantity adds delta to the quantity of a product, flooring at zero. A
// line that reaches zero is removed; otherwise notes and price are kept.
// A delta that would overflow the quantity leaves the cart unchanged.
func (c Cart) SetQuantity(productID string, delta int) Cart {
	out := c.clone()
	e, ok := out.entries[productID]
	if !ok {
		if delta > 0 {
			out.put(Entry{ProductID: productID, Quantity: delta})
		}
		return out
	}
	if delta > 0 && e.Quantity > math.MaxInt-delta {
		return c
	}
	e.Quantity = max(0, e.Quantity+delta)
	if e.Quantity == 0 {
		out.remove(productID)
		return out
	}
	out.put(e)
	return out
}

// SetNotes replaces the notes of a line. A product not in the cart is ignored.
func (c Cart) SetNotes(productID, text string) Cart {
	out := c.clone()
	e, ok := out.entries[productID]
	if !ok {
		return out
	}
	e.Notes = text
	out.put(e)
	return out
}

// AddOrUpdateEntry overwrites quantity and notes of a line in one step,
// creating it if needed. A quantity of zero or less removes the line.
func (c Cart) AddOrUpdateEntry(productID string, quantity int, notes string) Cart {
	out := c.clone()
	if quantity <= 0 {
		out.remove(productID)
		return out
	}
	e, ok := out.entries[productID]
	if !ok {
		e = Entry{ProductID: productID}
	}
	e.Quantity = quantity
	e.Notes = notes
	out.put(e)
	return out
}

func (c Cart) WithAdjustments(discount, tax int64) (Cart, error) {
	if discount < 0 || tax < 0 {
		return c, ErrNegativeAdjustment
	}
	out := c.clone()
	out.discount = discount
	out.tax = tax
	return out, nil
}

// WithTable selects a table. An empty id or Takeaway clears it.
func (c Cart) WithTable(tableID string) Cart {
	out := c.clone()
	if tableID == "" || tableID == Takeaway {
		out.tableID = nil
		return out
	}
	out.tableID = &tableID
	return out
}

func (c Cart) WithCustomer(name string) Cart {
	out := c.clone()
	out.customerName = strings.TrimSpace(name)
	return out
}

func (c Cart) Discount() int64      { return c.discount }
func (c Cart) Tax() int64           { return c.tax }
func (c Cart) CustomerName() string { return c.customerName }

// TableID returns the selected table, or nil for takeaway.
func (c Cart) TableID() *string {
	if c.tableID == nil {
		return nil
	}
	t := *c.tableID
	return &t
}

func (c Cart) Len() int { return len(c.ids) }

func (c Cart) IsEmpty() bool { return len(c.ids) == 0 }

// Entries returns the lines in the order products were first added.
func (c Cart) Entries() []Entry {
	out := make([]Entry, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.entries[id])
	}
	return out
}

func (c Cart) Entry(productID string) (Entry, bool) {
	e, ok := c.entries[productID]
	return e, ok
}
