// Package kitchen tracks the fulfillment state of order items for one
// kitchen session and moves items through pending, preparing, ready and
// served.
//
// Changes are applied to the board first and then written to the order
// store. When a write fails the board is put back the way it was before the
// call and a Notice is raised. When every item of an order is served the
// order is completed in the same call.
//
// The board serializes access to its own memory only. Two calls for the
// same order racing against the store may compute the all-served check on a
// snapshot that does not yet include the other call; callers that need an
// exact aggregate serialize calls per order.
package kitchen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clubpos/journal"
	"clubpos/models"
	"clubpos/mq"
	"clubpos/optimistic"
	"clubpos/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const failureNotice = "Could not update the item status. The change was reverted."

// Store is what the board reads orders from and writes status changes to.
type Store interface {
	store.ItemWriter
	FetchOrder(ctx context.Context, orderID string) (models.Order, error)
	FetchOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

type Options struct {
	Notifier Notifier
	Journal  journal.Recorder
	Events   mq.Publisher
	Tracer   trace.Tracer
	Now      func() time.Time
}

type itemSlot struct {
	item models.OrderItem
	rev  uint64
}

type orderSlot struct {
	order models.Order
	rev   uint64
}

type Board struct {
	store    Store
	notifier Notifier
	journal  journal.Recorder
	events   mq.Publisher
	tracer   trace.Tracer
	now      func() time.Time

	mu      sync.Mutex
	rev     uint64
	orders  map[string]*orderSlot
	items   map[string]*itemSlot
	byOrder map[string][]string
}

func NewBoard(s Store, opts Options) *Board {
	b := &Board{
		store:    s,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		events:   opts.Events,
		tracer:   opts.Tracer,
		now:      opts.Now,
		orders:   make(map[string]*orderSlot),
		items:    make(map[string]*itemSlot),
		byOrder:  make(map[string][]string),
	}
	if b.notifier == nil {
		b.notifier = LogNotifier{}
	}
	if b.journal == nil {
		b.journal = journal.Discard{}
	}
	if b.events == nil {
		b.events = mq.Discard{}
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer("clubpos/kitchen")
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *Board) nextRev() uint64 {
	b.rev++
	return b.rev
}

// Track puts an order and its items on the board, replacing whatever was
// tracked for that order before.
func (b *Board) Track(order models.Order, items []models.OrderItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgetLocked(order.OrderID)
	b.orders[order.OrderID] = &orderSlot{order: order, rev: b.nextRev()}
	b.trackItemsLocked(items)
}

// TrackItems tracks items without their order record. The completion write
// is still issued for such items, but there is no local order to update.
func (b *Board) TrackItems(items ...models.OrderItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackItemsLocked(items)
}

func (b *Board) trackItemsLocked(items []models.OrderItem) {
	for _, it := range items {
		if old, ok := b.items[it.ItemID]; ok && old.item.OrderID != it.OrderID {
			b.removeItemLocked(old.item.OrderID, it.ItemID)
		}
		if _, ok := b.items[it.ItemID]; !ok {
			b.byOrder[it.OrderID] = append(b.byOrder[it.OrderID], it.ItemID)
		}
		b.items[it.ItemID] = &itemSlot{item: it, rev: b.nextRev()}
	}
}

func (b *Board) removeItemLocked(orderID, itemID string) {
	ids := b.byOrder[orderID]
	for i, id := range ids {
		if id == itemID {
			b.byOrder[orderID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	delete(b.items, itemID)
}

// Load fetches an order and its items from the store and tracks them.
func (b *Board) Load(ctx context.Context, orderID string) (models.Order, []models.OrderItem, error) {
	order, err := b.store.FetchOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	items, err := b.store.FetchOrderItems(ctx, orderID)
	if err != nil {
		return models.Order{}, nil, err
	}
	b.Track(order, items)
	return order, items, nil
}

// Forget drops an order and its items. Rollbacks still in flight for them
// become no-ops.
func (b *Board) Forget(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forgetLocked(orderID)
}

func (b *Board) forgetLocked(orderID string) {
	for _, id := range b.byOrder[orderID] {
		delete(b.items, id)
	}
	delete(b.byOrder, orderID)
	delete(b.orders, orderID)
}

// Snapshot returns copies of the tracked order and its items. ok is false
// when nothing is tracked for orderID.
func (b *Board) Snapshot(orderID string) (order models.Order, items []models.OrderItem, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, known := b.orders[orderID]
	if known {
		order = slot.order
	}
	items = b.itemsLocked(orderID)
	return order, items, known || len(items) > 0
}

func (b *Board) itemsLocked(orderID string) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(b.byOrder[orderID]))
	for _, id := range b.byOrder[orderID] {
		if s, ok := b.items[id]; ok {
			out = append(out, s.item)
		}
	}
	return out
}

// Advance moves an item to the state after its current one.
func (b *Board) Advance(ctx context.Context, orderID, itemID string) (models.ItemStatus, error) {
	b.mu.Lock()
	slot, ok := b.items[itemID]
	var current models.ItemStatus
	if ok {
		current = slot.item.Status
	}
	b.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrItemNotTracked, itemID)
	}
	next, ok := current.Next()
	if !ok {
		return current, fmt.Errorf("%w: %s", ErrAlreadyServed, itemID)
	}
	if err := b.AdvanceItemStatus(ctx, orderID, itemID, next); err != nil {
		return current, err
	}
	return next, nil
}

// AdvanceItemStatus sets the status of a tracked item, completing the order
// when the change leaves every item of the order served. Any valid target is
// accepted, including going backwards.
//
// Precondition failures return before anything changes. A failed store
// write returns a *WriteError after the board has been restored.
func (b *Board) AdvanceItemStatus(ctx context.Context, orderID, itemID string, status models.ItemStatus) error {
	ctx, span := b.tracer.Start(ctx, "kitchen.AdvanceItemStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("item.id", itemID),
		attribute.String("item.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStatus, status)
	}

	tx := optimistic.Begin("advance item status")
	now := b.now()

	b.mu.Lock()
	slot, ok := b.items[itemID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrItemNotTracked, itemID)
	}
	if slot.item.OrderID != orderID {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s is on order %s, not %s", ErrItemOrderMismatch, itemID, slot.item.OrderID, orderID)
	}

	prevItem := slot.item
	updated := b.itemsLocked(orderID)
	for i := range updated {
		if updated[i].ItemID == itemID {
			updated[i].Status = status
		}
	}

	oslot, orderKnown := b.orders[orderID]
	var prevOrder models.Order
	if orderKnown {
		prevOrder = oslot.order
	}
	completes := models.AllServed(updated) && (!orderKnown || prevOrder.Status != models.OrderCompleted)

	// Apply callbacks run here under b.mu; revert callbacks run from
	// Rollback after it has been released and take the lock themselves.
	var itemRev uint64
	tx.Apply(func() {
		slot.item.Status = status
		slot.item.UpdatedAt = now
		slot.rev = b.nextRev()
		itemRev = slot.rev
	}, func() {
		b.restoreItem(itemID, itemRev, prevItem)
	})

	var orderRev uint64
	if completes && orderKnown {
		tx.Apply(func() {
			oslot.order.Status = models.OrderCompleted
			oslot.order.UpdatedAt = now
			oslot.rev = b.nextRev()
			orderRev = oslot.rev
		}, func() {
			b.restoreOrder(orderID, orderRev, prevOrder)
		})
	}
	b.mu.Unlock()

	var storedItem models.OrderItem
	var storedOrder models.Order
	err := tx.Do(ctx, optimistic.Step{
		Name: "update order item",
		Execute: func(ctx context.Context) error {
			var err error
			storedItem, err = b.store.UpdateOrderItem(ctx, itemID, models.ItemUpdate{Status: status})
			return err
		},
		Compensate: func(ctx context.Context) error {
			_, err := b.store.UpdateOrderItem(ctx, itemID, models.ItemUpdate{Status: prevItem.Status})
			return err
		},
	})
	if err == nil && completes {
		err = tx.Do(ctx, optimistic.Step{
			Name: "update order",
			Execute: func(ctx context.Context) error {
				var err error
				storedOrder, err = b.store.UpdateOrder(ctx, orderID, models.OrderUpdate{
					Status:    models.StatusPtr(models.OrderCompleted),
					UpdatedAt: now,
				})
				return err
			},
		})
	}

	entry := journal.Entry{
		OrderID:        orderID,
		ItemID:         itemID,
		FromStatus:     string(prevItem.Status),
		ToStatus:       string(status),
		OrderCompleted: completes,
		EmployeeID:     journal.EmployeeFrom(ctx),
	}

	if err != nil {
		// the caller may have given up on ctx; undo work must still reach the store
		compErrs := tx.Rollback(context.WithoutCancel(ctx))
		werr := &WriteError{
			OrderID:      orderID,
			ItemID:       itemID,
			Status:       status,
			Notice:       failureNotice,
			Err:          err,
			Compensation: compErrs,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store write failed")

		entry.Outcome = journal.OutcomeRolledBack
		entry.OrderCompleted = false
		entry.Errors = []string{err.Error()}
		if len(compErrs) > 0 {
			entry.Outcome = journal.OutcomeCompensationFailed
			for _, ce := range compErrs {
				entry.Errors = append(entry.Errors, ce.Error())
			}
		}
		b.record(ctx, entry)
		b.notifier.Notify(ctx, Notice{OrderID: orderID, ItemID: itemID, Message: failureNotice, Err: werr})
		return werr
	}
	tx.Commit()

	b.reconcile(itemRev, storedItem, orderRev, storedOrder)

	entry.Outcome = journal.OutcomeApplied
	b.record(ctx, entry)

	employee := journal.EmployeeFrom(ctx)
	mq.Emit(ctx, b.events, mq.Event{
		Name: mq.EventItemStatusChanged, OrderID: orderID, ItemID: itemID,
		Status: string(status), EmployeeID: employee, At: now,
	})
	if completes {
		span.SetAttributes(attribute.Bool("order.completed", true))
		mq.Emit(ctx, b.events, mq.Event{
			Name: mq.EventOrderCompleted, OrderID: orderID,
			Status: string(models.OrderCompleted), EmployeeID: employee, At: now,
		})
	}
	return nil
}

// restoreItem puts prev back only if the slot still holds the value written
// under rev. A forgotten item, or one changed since, is left alone.
func (b *Board) restoreItem(itemID string, rev uint64, prev models.OrderItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.items[itemID]
	if !ok || slot.rev != rev {
		return
	}
	slot.item.Status = prev.Status
	slot.item.UpdatedAt = prev.UpdatedAt
	slot.rev = b.nextRev()
}

func (b *Board) restoreOrder(orderID string, rev uint64, prev models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.orders[orderID]
	if !ok || slot.rev != rev {
		return
	}
	slot.order.Status = prev.Status
	slot.order.UpdatedAt = prev.UpdatedAt
	slot.rev = b.nextRev()
}

// reconcile copies what the store returned onto the board, under the same
// compare rule as the rollbacks.
func (b *Board) reconcile(itemRev uint64, it models.OrderItem, orderRev uint64, o models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot, ok := b.items[it.ItemID]; ok && it.ItemID != "" && slot.rev == itemRev {
		slot.item = it
	}
	if slot, ok := b.orders[o.OrderID]; ok && o.OrderID != "" && orderRev != 0 && slot.rev == orderRev {
		slot.order = o
	}
}

func (b *Board) record(ctx context.Context, e journal.Entry) {
	if err := b.journal.Record(ctx, journal.NewEntry(ctx, e)); err != nil {
		slog.ErrorContext(ctx, "journal write failed", "orderid", e.OrderID, "itemid", e.ItemID, "error", err)
	}
}
