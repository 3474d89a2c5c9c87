package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clubpos/cart"
	"clubpos/kitchen"
	"clubpos/models"
	"clubpos/receipt"
	"clubpos/store"
	"clubpos/utils"

	"github.com/julienschmidt/httprouter"
)

const requestTimeout = 10 * time.Second

// Handler serves the catalog, draft and kitchen endpoints.
type Handler struct {
	store   store.Store
	board   *kitchen.Board
	service *Service
	drafts  *Drafts
	locks   *KeyedLock
}

func NewHandler(s store.Store, board *kitchen.Board, service *Service, drafts *Drafts) *Handler {
	return &Handler{store: s, board: board, service: service, drafts: drafts, locks: NewKeyedLock()}
}

// respondError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var werr *kitchen.WriteError
	switch {
	case errors.As(err, &werr):
		utils.RespondWithError(w, http.StatusBadGateway, werr.Notice)
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ErrDraftNotFound),
		errors.Is(err, kitchen.ErrItemNotTracked):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, kitchen.ErrItemOrderMismatch),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrNegativeAdjustment):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, kitchen.ErrAlreadyServed),
		errors.Is(err, store.ErrServedItemsLocked):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		utils.RespondWithError(w, http.StatusGatewayTimeout, "order store timed out")
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) catalog(ctx context.Context) (cart.Catalog, error) {
	products, err := h.store.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	return cart.IndexProducts(products), nil
}

/* ---------- catalog ---------- */

func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	products, err := h.store.FetchProducts(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, products)
}

func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	categories, err := h.store.FetchProductCategories(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *Handler) GetTables(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	tables, err := h.store.FetchTables(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, tables)
}

/* ---------- orders ---------- */

type orderResponse struct {
	Order models.Order       `json:"order"`
	Items []models.OrderItem `json:"items"`
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	orderID := ps.ByName("orderid")

	order, err := h.store.FetchOrder(ctx, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	items, err := h.store.FetchOrderItems(ctx, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, orderResponse{Order: order, Items: items})
}

func (h *Handler) PrintChit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	orderID := ps.ByName("orderid")

	order, err := h.store.FetchOrder(ctx, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	items, err := h.store.FetchOrderItems(ctx, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	cat, err := h.catalog(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	tableName := ""
	if order.TableID != nil {
		tableName = *order.TableID
		tables, err := h.store.FetchTables(ctx)
		if err != nil {
			respondError(w, r, err)
			return
		}
		for _, t := range tables {
			if t.TableID == *order.TableID {
				tableName = t.Name
			}
		}
	}

	pdf, err := receipt.Chit(order, items, cat, tableName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=chit-"+orderID+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

/* ---------- drafts ---------- */

type draftResponse struct {
	DraftID     string `json:"draftid"`
	EditOrderID string `json:"edit_orderid,omitempty"`
	cart.Summary
}

func (h *Handler) respondDraft(w http.ResponseWriter, r *http.Request, code int, d Draft) {
	cat, err := h.catalog(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := draftResponse{DraftID: d.ID, Summary: d.Cart.Summarize(cat)}
	if d.Editing != nil {
		resp.EditOrderID = d.Editing.OrderID
	}
	utils.RespondWithJSON(w, code, resp)
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var body struct {
		EditOrderID string `json:"editOrderId"`
	}
	if err := utils.DecodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if body.EditOrderID == "" {
		h.respondDraft(w, r, http.StatusCreated, h.drafts.Create(cart.New(), nil))
		return
	}

	order, err := h.store.FetchOrder(ctx, body.EditOrderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	items, err := h.store.FetchOrderItems(ctx, body.EditOrderID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	d := h.drafts.Create(cart.InitializeFromExistingOrder(order, items), &order)
	h.respondDraft(w, r, http.StatusCreated, d)
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, ok := h.drafts.Get(ps.ByName("draftid"))
	if !ok {
		respondError(w, r, ErrDraftNotFound)
		return
	}
	h.respondDraft(w, r, http.StatusOK, d)
}

func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.drafts.Delete(ps.ByName("draftid")) {
		respondError(w, r, ErrDraftNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutateDraft decodes the body into req and applies fn to the draft's cart.
func mutateDraft[T any](h *Handler, w http.ResponseWriter, r *http.Request, ps httprouter.Params, fn func(c cart.Cart, req T) (cart.Cart, error)) {
	var req T
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	d, err := h.drafts.Update(ps.ByName("draftid"), func(c cart.Cart) (cart.Cart, error) {
		return fn(c, req)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.respondDraft(w, r, http.StatusOK, d)
}

func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID := ps.ByName("productid")
	mutateDraft(h, w, r, ps, func(c cart.Cart, req struct {
		Delta int `json:"delta"`
	}) (cart.Cart, error) {
		return c.SetQuantity(productID, req.Delta), nil
	})
}

func (h *Handler) PutItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID := ps.ByName("productid")
	mutateDraft(h, w, r, ps, func(c cart.Cart, req struct {
		Quantity int    `json:"quantity"`
		Notes    string `json:"notes"`
	}) (cart.Cart, error) {
		return c.AddOrUpdateEntry(productID, req.Quantity, req.Notes), nil
	})
}

func (h *Handler) PutNotes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	productID := ps.ByName("productid")
	mutateDraft(h, w, r, ps, func(c cart.Cart, req struct {
		Notes string `json:"notes"`
	}) (cart.Cart, error) {
		return c.SetNotes(productID, req.Notes), nil
	})
}

func (h *Handler) PutAdjustments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	mutateDraft(h, w, r, ps, func(c cart.Cart, req struct {
		Discount int64 `json:"discount"`
		Tax      int64 `json:"tax"`
	}) (cart.Cart, error) {
		return c.WithAdjustments(req.Discount, req.Tax)
	})
}

func (h *Handler) PutDetails(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	mutateDraft(h, w, r, ps, func(c cart.Cart, req struct {
		TableID      string `json:"tableid"`
		CustomerName string `json:"customer_name"`
	}) (cart.Cart, error) {
		return c.WithTable(req.TableID).WithCustomer(req.CustomerName), nil
	})
}

// SubmitDraft writes a draft to the order store. The draft is claimed for
// the duration of the call; a concurrent submit of the same draft gets 404.
// When editing, the order is re-read under its lock so that status and
// payment changes made since the draft was opened are kept.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	d, ok := h.drafts.Take(ps.ByName("draftid"))
	if !ok {
		respondError(w, r, ErrDraftNotFound)
		return
	}
	submitted := false
	defer func() {
		if !submitted {
			h.drafts.Restore(d)
		}
	}()

	var editing *models.Order
	if d.Editing != nil {
		unlock := h.locks.Lock(d.Editing.OrderID)
		defer unlock()
		current, err := h.store.FetchOrder(ctx, d.Editing.OrderID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		editing = &current
	}

	cat, err := h.catalog(ctx)
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := d.Cart.Finalize(cat, editing)
	if err != nil {
		respondError(w, r, err)
		return
	}
	order, items, err := h.service.Submit(ctx, payload, editing)
	if err != nil {
		respondError(w, r, err)
		return
	}
	submitted = true

	if _, _, tracked := h.board.Snapshot(order.OrderID); tracked {
		h.board.Track(order, items)
	}

	code := http.StatusCreated
	if editing != nil {
		code = http.StatusOK
	}
	utils.RespondWithJSON(w, code, orderResponse{Order: order, Items: items})
}

/* ---------- kitchen ---------- */

func (h *Handler) respondBoard(w http.ResponseWriter, r *http.Request, orderID string) {
	order, items, ok := h.board.Snapshot(orderID)
	if !ok {
		respondError(w, r, store.ErrNotFound)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, orderResponse{Order: order, Items: items})
}

func (h *Handler) LoadKitchenOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	orderID := ps.ByName("orderid")

	unlock := h.locks.Lock(orderID)
	defer unlock()

	if _, _, err := h.board.Load(ctx, orderID); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondBoard(w, r, orderID)
}

func (h *Handler) SetItemStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	orderID, itemID := ps.ByName("orderid"), ps.ByName("itemid")

	var body struct {
		Status string `json:"status"`
	}
	if err := utils.DecodeJSON(w, r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	status, err := models.ParseItemStatus(body.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	unlock := h.locks.Lock(orderID)
	defer unlock()

	if err := h.board.AdvanceItemStatus(ctx, orderID, itemID, status); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondBoard(w, r, orderID)
}

func (h *Handler) AdvanceItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	orderID, itemID := ps.ByName("orderid"), ps.ByName("itemid")

	unlock := h.locks.Lock(orderID)
	defer unlock()

	if _, err := h.board.Advance(ctx, orderID, itemID); err != nil {
		respondError(w, r, err)
		return
	}
	h.respondBoard(w, r, orderID)
}
