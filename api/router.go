// Package api is the HTTP surface of the storefront: a gin router whose
// handlers decode and validate input, apply the identity gate where a
// route is protected, call the repositories and map the outcome to a
// status and JSON body.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/storefront/cache"
	"github.com/Skryldev/storefront/events"
	"github.com/Skryldev/storefront/identity"
	"github.com/Skryldev/storefront/metrics"
	"github.com/Skryldev/storefront/repo"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the router. Store, the repositories and
// Identity are required; everything else has a no-op default.
type Deps struct {
	Store      Pinger
	Categories repo.CategoryRepository
	Products   repo.ProductRepository
	Orders     repo.OrderRepository
	Identity   *identity.Service

	ProductCache *cache.Products
	AuthLimiter  cache.Limiter
	Events       events.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// TrustedProxies may set X-Forwarded-For. nil trusts none, so the
	// client IP is the socket peer.
	TrustedProxies []string
}

type handler struct {
	Deps
}

// NewRouter wires every route. The returned engine is ready for
// http.Server.Handler.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ProductCache == nil {
		d.ProductCache = cache.NewProducts(cache.Nop{}, time.Minute, d.Logger)
	}
	if d.AuthLimiter == nil {
		d.AuthLimiter = cache.Nop{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	h := &handler{Deps: d}

	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Logger.Error("api: invalid trusted proxies; trusting none", slog.Any("error", err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(requestID(), requestLogger(d.Logger), h.recovery())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})

	r.GET("/health", h.health)

	categories := r.Group("/categories")
	{
		categories.GET("", h.listCategories)
		categories.GET("/:id", h.getCategory)
		categories.POST("", h.createCategory)
		categories.PUT("/:id", h.updateCategory)
		categories.DELETE("/:id", h.deleteCategory)
		categories.DELETE("", h.deleteCategories)
	}

	products := r.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/:id", h.getProduct)
		products.POST("", h.createProduct)
		products.PATCH("/:id", h.updateProduct)
		products.PUT("/:id", h.updateProduct)
		products.DELETE("/:id", h.deleteProduct)
		products.DELETE("", h.deleteProducts)
	}

	orders := r.Group("/orders")
	{
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("", h.createOrder)
		orders.DELETE("/:id", h.deleteOrder)
	}

	user := r.Group("/user")
	{
		limited := rateLimit(d.AuthLimiter, d.Logger)
		user.POST("/register", limited, h.register)
		user.POST("/auth", limited, h.authenticate)
		user.POST("/register-address", h.registerAddress)
		user.GET("/me", h.me)
		user.GET("/orders", h.myOrders)
	}

	return r
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.ErrorContext(ctx, "api: health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
