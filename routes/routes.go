package routes

import (
	"net/http"
	"time"

	"clubpos/idempotency"
	"clubpos/middleware"
	"clubpos/orders"
	"clubpos/ratelim"

	"github.com/julienschmidt/httprouter"
)

// Deps is everything the route table needs.
type Deps struct {
	Orders         *orders.Handler
	RateLimiter    *ratelim.RateLimiter
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
}

func Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("200"))
}

// mutating wraps handlers that change state: employee attribution, then the
// per-client rate limit.
func mutating(d Deps, h httprouter.Handle) httprouter.Handle {
	return d.RateLimiter.Limit(middleware.OptionalAuth(h))
}

func AddCatalogRoutes(router *httprouter.Router, d Deps) {
	router.GET("/api/v1/products", d.Orders.GetProducts)
	router.GET("/api/v1/categories", d.Orders.GetCategories)
	router.GET("/api/v1/tables", d.Orders.GetTables)
}

func AddOrderRoutes(router *httprouter.Router, d Deps) {
	router.GET("/api/v1/orders/:orderid", d.Orders.GetOrder)
	router.GET("/api/v1/orders/:orderid/chit", d.Orders.PrintChit)
}

func AddDraftRoutes(router *httprouter.Router, d Deps) {
	router.POST("/api/v1/drafts", mutating(d, d.Orders.CreateDraft))
	router.GET("/api/v1/drafts/:draftid", d.Orders.GetDraft)
	router.DELETE("/api/v1/drafts/:draftid", mutating(d, d.Orders.DeleteDraft))

	router.PATCH("/api/v1/drafts/:draftid/items/:productid/quantity", mutating(d, d.Orders.SetQuantity))
	router.PUT("/api/v1/drafts/:draftid/items/:productid", mutating(d, d.Orders.PutItem))
	router.PUT("/api/v1/drafts/:draftid/items/:productid/notes", mutating(d, d.Orders.PutNotes))
	router.PUT("/api/v1/drafts/:draftid/adjustments", mutating(d, d.Orders.PutAdjustments))
	router.PUT("/api/v1/drafts/:draftid/details", mutating(d, d.Orders.PutDetails))

	submit := idempotency.Middleware(d.Idempotency, d.IdempotencyTTL)(d.Orders.SubmitDraft)
	router.POST("/api/v1/drafts/:draftid/submit", mutating(d, submit))
}

func AddKitchenRoutes(router *httprouter.Router, d Deps) {
	router.POST("/api/v1/kitchen/orders/:orderid", mutating(d, d.Orders.LoadKitchenOrder))
	router.PUT("/api/v1/kitchen/orders/:orderid/items/:itemid/status", mutating(d, d.Orders.SetItemStatus))
	router.POST("/api/v1/kitchen/orders/:orderid/items/:itemid/advance", mutating(d, d.Orders.AdvanceItem))
}

// New builds the router with every route registered.
func New(d Deps) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Health)

	AddCatalogRoutes(router, d)
	AddOrderRoutes(router, d)
	AddDraftRoutes(router, d)
	AddKitchenRoutes(router, d)
	return router
}
