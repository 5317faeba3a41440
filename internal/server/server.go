package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopdome/commerce/internal/auth"
	authdomain "github.com/shopdome/commerce/internal/auth/domain"
	"github.com/shopdome/commerce/internal/catalog"
	catalogdomain "github.com/shopdome/commerce/internal/catalog/domain"
	"github.com/shopdome/commerce/internal/checkout"
	checkoutdomain "github.com/shopdome/commerce/internal/checkout/domain"
	"github.com/shopdome/commerce/internal/config"
	"github.com/shopdome/commerce/internal/customer"
	customerdomain "github.com/shopdome/commerce/internal/customer/domain"
	"github.com/shopdome/commerce/internal/events"
	"github.com/shopdome/commerce/internal/notification"
	"github.com/shopdome/commerce/internal/observability"
	obsmiddleware "github.com/shopdome/commerce/internal/observability/logger"
	obsmetrics "github.com/shopdome/commerce/internal/observability/metrics"
	obstracing "github.com/shopdome/commerce/internal/observability/tracing"
	"github.com/shopdome/commerce/internal/order"
	orderdomain "github.com/shopdome/commerce/internal/order/domain"
	"github.com/shopdome/commerce/internal/payment"
	paymentdomain "github.com/shopdome/commerce/internal/payment/domain"
	"github.com/shopdome/commerce/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	events.Module,
	notification.Module,
	auth.Module,
	customer.Module,
	catalog.Module,
	order.Module,
	checkout.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	authsvc         authdomain.Service
	customerSvc     customerdomain.Service
	catalogSvc      catalogdomain.Service
	orderSvc        orderdomain.Service
	checkoutSvc     checkoutdomain.Service
	webhookSvc      paymentdomain.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	Authsvc     authdomain.Service
	CustomerSvc customerdomain.Service
	CatalogSvc  catalogdomain.Service
	OrderSvc    orderdomain.Service
	CheckoutSvc checkoutdomain.Service
	WebhookSvc  paymentdomain.Service

	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authsvc:         p.Authsvc,
		customerSvc:     p.CustomerSvc,
		catalogSvc:      p.CatalogSvc,
		orderSvc:        p.OrderSvc,
		checkoutSvc:     p.CheckoutSvc,
		webhookSvc:      p.WebhookSvc,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Storefront --------
	api.GET("/products", s.ListPublicProducts)
	api.GET("/products/:id", s.GetPublicProductByID)

	// -------- Checkout --------
	api.POST("/checkout/sessions", s.CheckoutRateLimit(), s.CreateCheckoutSession)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.Use(s.AuthRequired())

	// -------- Orders --------
	admin.GET("/orders", s.ListOrders)
	admin.GET("/orders/:id", s.GetOrderByID)
	admin.PATCH("/orders/:id/status", s.UpdateOrderStatus)

	// -------- Products --------
	admin.GET("/products", s.ListProducts)
	admin.POST("/products", s.CreateProduct)
	admin.GET("/products/:id", s.GetProductByID)
	admin.PATCH("/products/:id", s.UpdateProduct)
	admin.POST("/products/:id/archive", s.ArchiveProduct)

	// -------- Customers --------
	admin.GET("/customers", s.ListCustomers)
	admin.GET("/customers/:id", s.GetCustomerByID)

	// -------- Admin users --------
	admin.POST("/users", s.RequireRole(authdomain.RoleSuperAdmin), s.CreateAdminUser)
}
