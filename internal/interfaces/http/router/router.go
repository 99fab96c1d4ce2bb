// Package router assembles the gin engine: middleware chain and routes.
package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/interfaces/http/handler"
	"github.com/manavault/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar registers routes under the versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered by Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup is a prefixed set of routes with optional per-route middleware
type DomainGroup struct {
	name   string
	prefix string
	routes []routeDefinition
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "GET", path: path, handlers: handlers})
	return dg
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "POST", path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Config carries the cross-cutting settings of the engine.
type Config struct {
	ServiceName      string
	TracingEnabled   bool
	MaxBodySize      int64
	TrustedProxies   []string
	IdempotencyStore shared.IdempotencyStore
	IdempotencyTTL   time.Duration
	Meter            metric.Meter
	Logger           *zap.Logger
}

// Handlers are the endpoint groups served by the engine.
type Handlers struct {
	PurchaseOrders *handler.PurchaseOrderHandler
	Vouchers       *handler.VoucherHandler
	Reconciliation *handler.ReconciliationHandler
	System         *handler.SystemHandler
}

// NewEngine builds the engine. Middleware order: request id, panic recovery,
// tracing, request logging, metrics, body limit.
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(cfg.Logger),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanAttributes(),
		logger.GinMiddleware(cfg.Logger),
		middleware.HTTPMetrics(cfg.Meter, cfg.Logger),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.NoRoute(middleware.NoRoute())
	engine.NoMethod(middleware.NoMethod())

	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}

	r := NewRouter(engine)
	if h.PurchaseOrders != nil {
		r.Register(NewDomainGroup("purchase-orders", "/purchase-orders").
			POST("", middleware.Idempotency(cfg.IdempotencyStore, "purchase-order.create", cfg.IdempotencyTTL), h.PurchaseOrders.Create).
			GET("/:id", h.PurchaseOrders.Get).
			POST("/:id/vouchers/import", h.PurchaseOrders.ImportVouchers))
	}
	if h.Vouchers != nil {
		r.Register(NewDomainGroup("vouchers", "/vouchers").
			GET("/:id/code", h.Vouchers.RevealCode))
	}
	if h.Reconciliation != nil {
		r.Register(NewDomainGroup("reconciliation", "/reconciliation").
			POST("/run", h.Reconciliation.Run))
	}
	r.Setup()

	return engine, nil
}
