package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/cache"
	"newsletter/internal/email"
	"newsletter/internal/handlers"
	"newsletter/internal/logging"
	"newsletter/internal/metrics"
	"newsletter/internal/repository"
	"newsletter/internal/service"
)

// Config carries everything Build needs. Nothing here is read from globals.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Addr           string
	Logger         *logging.ContextLogger
	TracerProvider trace.TracerProvider
	GinMode        string
	RequestTimeout time.Duration

	Repository  repository.SubscriberRepository
	Cache       cache.Cache // optional
	CacheTTL    time.Duration
	EmailSender email.Sender // optional
	Metrics     *metrics.Metrics
}

type Application struct {
	server  *http.Server
	config  *Config
	router  *gin.Engine
	repo    repository.SubscriberRepository
	cache   cache.Cache
	metrics *metrics.Metrics
	service *service.SubscriberService
	handler *handlers.SubscriberHandler
}

func Build(config *Config) *Application {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	repo := config.Repository
	if repo == nil {
		repo = repository.NewInMemorySubscriberRepository(config.TracerProvider)
	}
	m := config.Metrics
	if m == nil {
		m = metrics.New()
	}

	subscriberService := service.NewSubscriberService(service.Options{
		Repository:     repo,
		Cache:          config.Cache,
		CacheTTL:       config.CacheTTL,
		EmailSender:    config.EmailSender,
		Logger:         config.Logger,
		TracerProvider: config.TracerProvider,
		Metrics:        m,
	})
	subscriberHandler := handlers.NewSubscriberHandler(subscriberService, config.Logger, config.TracerProvider)

	ids := &requestIDCounter{}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ids.middleware())
	router.Use(otelgin.Middleware(config.ServiceName, otelgin.WithTracerProvider(config.TracerProvider)))
	router.Use(accessLog(config.Logger))
	router.Use(requestTimeout(config.RequestTimeout))

	router.POST("/subscriptions", subscriberHandler.Subscribe)
	router.GET("/health_check", subscriberHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	server := &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		server:  server,
		config:  config,
		router:  router,
		repo:    repo,
		cache:   config.Cache,
		metrics: m,
		service: subscriberService,
		handler: subscriberHandler,
	}
}

func (app *Application) Run() error {
	app.config.Logger.Info("Starting server on " + app.config.Addr)
	if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (app *Application) Shutdown(ctx context.Context) error {
	app.config.Logger.Info("Shutting down server...")
	return app.server.Shutdown(ctx)
}

func (app *Application) GetRepo() repository.SubscriberRepository {
	return app.repo
}

func (app *Application) GetCache() cache.Cache {
	return app.cache
}

func (app *Application) GetMetrics() *metrics.Metrics {
	return app.metrics
}

func (app *Application) GetService() *service.SubscriberService {
	return app.service
}

func (app *Application) GetHandler() *handlers.SubscriberHandler {
	return app.handler
}

func (app *Application) GetRouter() *gin.Engine {
	return app.router
}
