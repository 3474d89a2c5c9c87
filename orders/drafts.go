package orders

import (
	"errors"
	"sync"
	"time"

	"clubpos/cart"
	"clubpos/models"

	"github.com/google/uuid"
)

var ErrDraftNotFound = errors.New("orders: draft not found")

// Draft is a cart being composed at a terminal.
type Draft struct {
	ID string
	// Editing is the order the draft was seeded from, nil for a new order.
	Editing   *models.Order
	Cart      cart.Cart
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Drafts holds open drafts in memory.
type Drafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
	now    func() time.Time
}

func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[string]Draft), now: time.Now}
}

func (d *Drafts) Create(c cart.Cart, editing *models.Order) Draft {
	now := d.now()
	draft := Draft{ID: uuid.NewString(), Editing: editing, Cart: c, CreatedAt: now, UpdatedAt: now}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[draft.ID] = draft
	return draft
}

func (d *Drafts) Get(id string) (Draft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[id]
	return draft, ok
}

// Update replaces the cart of a draft with the result of fn. On error the
// draft is left as it was.
func (d *Drafts) Update(id string, fn func(cart.Cart) (cart.Cart, error)) (Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	c, err := fn(draft.Cart)
	if err != nil {
		return draft, err
	}
	draft.Cart = c
	draft.UpdatedAt = d.now()
	d.drafts[id] = draft
	return draft, nil
}

// Take removes a draft and returns it, so that only one caller can submit
// it. Put it back with Restore if the submission fails.
func (d *Drafts) Take(id string) (Draft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.drafts[id]
	if ok {
		delete(d.drafts, id)
	}
	return draft, ok
}

// Restore puts back a draft removed by Take.
func (d *Drafts) Restore(draft Draft) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[draft.ID] = draft
}

func (d *Drafts) Delete(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.drafts[id]
	delete(d.drafts, id)
	return ok
}

// Expire drops drafts not touched for longer than idle and returns how many.
func (d *Drafts) Expire(idle time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := d.now().Add(-idle)
	n := 0
	for id, draft := range d.drafts {
		if draft.UpdatedAt.Before(cutoff) {
			delete(d.drafts, id)
			n++
		}
	}
	return n
}
