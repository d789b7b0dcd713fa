package server

import (
	"context"
	"net/http"

	"craftchain/internal/config"
	"craftchain/internal/handler"
	appmiddleware "craftchain/internal/middleware"
	"craftchain/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	echo               *echo.Echo
	log                *zap.Logger
	gatherer           prometheus.Gatherer
	limiter            *appmiddleware.RateLimiter
	paymentHandler     *handler.PaymentHandler
	certificateHandler *handler.CertificateHandler
	productHandler     *handler.ProductHandler
	userHandler        *handler.UserHandler
}

func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	gatherer prometheus.Gatherer,
	paymentService service.PaymentService,
	certificateService service.CertificateService,
	productService service.ProductService,
	userService service.UserService,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(log)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("requestId", v.RequestID),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(appmiddleware.AuthMiddleware(cfg.Auth.JWTSecret))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		echo:               e,
		log:                log,
		gatherer:           gatherer,
		limiter:            appmiddleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		paymentHandler:     handler.NewPaymentHandler(paymentService),
		certificateHandler: handler.NewCertificateHandler(certificateService, cfg.Ledger.ExplorerURL),
		productHandler:     handler.NewProductHandler(productService),
		userHandler:        handler.NewUserHandler(userService, cfg.Auth),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- accounts --------
	auth := api.Group("/auth")
	auth.POST("/register", s.userHandler.Register, s.limiter.Limit())
	auth.POST("/login", s.userHandler.Login, s.limiter.Limit())
	auth.GET("/me", s.userHandler.Me)

	// -------- catalog --------
	api.GET("/products", s.productHandler.List)
	api.GET("/products/:id", s.productHandler.Get)
	api.POST("/products/seed", s.productHandler.Seed)

	// -------- payment --------
	payment := api.Group("/payment")
	payment.POST("/create-order", s.paymentHandler.CreateOrder, s.limiter.Limit())
	payment.POST("/verify", s.paymentHandler.Verify, s.limiter.Limit())

	// -------- gateway webhooks --------
	payment.POST("/webhook", s.paymentHandler.Webhook)

	// -------- certificates --------
	cert := api.Group("/certificate")
	cert.GET("", s.certificateHandler.Get)
	cert.GET("/verify/:tokenId", s.certificateHandler.Verify)
	cert.GET("/:paymentId/pdf", s.certificateHandler.PDF)
	cert.POST("/:paymentId/retry", s.certificateHandler.Retry, s.limiter.Limit())
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
