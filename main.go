package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/agreement"
	"github.com/Ramsey-B/fern/internal/repositories/amendment"
	"github.com/Ramsey-B/fern/internal/repositories/assurance"
	"github.com/Ramsey-B/fern/internal/repositories/intervention"
	"github.com/Ramsey-B/fern/internal/repositories/partner"
	"github.com/Ramsey-B/fern/internal/repositories/plannedvisit"
	reportingrepo "github.com/Ramsey-B/fern/internal/repositories/reporting"
	"github.com/Ramsey-B/fern/internal/repositories/results"
	"github.com/Ramsey-B/fern/internal/repositories/review"
	"github.com/Ramsey-B/fern/internal/repositories/supplyitem"
	"github.com/Ramsey-B/fern/internal/repositories/syncjournal"
	"github.com/Ramsey-B/fern/pkg/amendments"
	"github.com/Ramsey-B/fern/pkg/budget"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/hact"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/refnum"
	"github.com/Ramsey-B/fern/pkg/reporting"
	agreementroutes "github.com/Ramsey-B/fern/pkg/routes/agreement"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	interventionroutes "github.com/Ramsey-B/fern/pkg/routes/intervention"
	partnerroutes "github.com/Ramsey-B/fern/pkg/routes/partner"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/sweeper"
	syncpkg "github.com/Ramsey-B/fern/pkg/sync"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vendors"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := setupTracing(ctx, cfg, logger)
	defer shutdownTracing()

	var (
		sqlxDB      *sqlx.DB
		db          database.DB
		redisClient *redis.Client
		producer    *syncpkg.Producer
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			var err error
			sqlxDB, err = connectDatabase(cfg)
			if err != nil {
				return err
			}
			if err := runMigrations(cfg, logger, sqlxDB); err != nil {
				return err
			}
			db = database.NewDatabaseInstance(sqlxDB, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if sqlxDB != nil {
				return sqlxDB.Close()
			}
			return nil
		},
	})
	boot.AddDependency(&dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			var err error
			redisClient, err = redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			return err
		},
		stop: func(ctx context.Context) error {
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
	})
	boot.AddDependency(&dependency{
		name: "kafka-producer",
		start: func(ctx context.Context) error {
			producer = syncpkg.NewProducer(cfg, logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if producer != nil {
				return producer.Close()
			}
			return nil
		},
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Shutdown did not complete cleanly")
		}
	}()

	// Repositories
	partnerRepo := partner.NewRepository(db, logger)
	agreementRepo := agreement.NewRepository(db, logger)
	interventionRepo := intervention.NewRepository(db, logger)
	resultsRepo := results.NewRepository(db, logger)
	supplyRepo := supplyitem.NewRepository(db, logger)
	visitRepo := plannedvisit.NewRepository(db, logger)
	reportingRepo := reportingrepo.NewRepository(db, logger)
	reviewRepo := review.NewRepository(db, logger)
	amendmentRepo := amendment.NewRepository(db, logger)
	assuranceRepo := assurance.NewRepository(db, logger)
	journalRepo := syncjournal.NewRepository(db, logger)

	// Domain services
	locker := redis.NewLocker(redisClient, cfg.AppName)
	allocator := refnum.NewAllocator(db, logger, cfg.CountryShortCode)
	recomputer := budget.NewRecomputer(resultsRepo, supplyRepo, interventionRepo, logger, cfg.LocalCurrency)
	planner := reporting.NewPlanner(reportingRepo, resultsRepo, logger)
	aggregator := hact.NewAggregator(db, partnerRepo, assuranceRepo, locker, logger)
	resolver := vendors.NewHTTPResolver(cfg.VendorLookupURL, logger)

	syncWorker := syncpkg.NewWorker(
		journalRepo, interventionRepo, agreementRepo, partnerRepo, resultsRepo,
		reportingRepo, producer, cfg.SyncBusinessArea, cfg.SyncMaxAttempts, 0, logger,
	)

	agreementSvc := lifecycle.NewAgreementService(db, agreementRepo, interventionRepo, partnerRepo, allocator, logger)
	interventionSvc := lifecycle.NewInterventionService(
		db, interventionRepo, agreementRepo, resultsRepo, assuranceRepo, reviewRepo,
		allocator, syncWorker, logger,
	)
	engine := amendments.NewEngine(
		db, interventionRepo, amendmentRepo, resultsRepo, supplyRepo, visitRepo,
		reportingRepo, reviewRepo, recomputer, syncWorker, logger,
	)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		log.Fatalf("failed to create DI container: %v", err)
	}
	register(container, partnerRepo)
	register(container, agreementRepo)
	register(container, interventionRepo)
	register(container, resultsRepo)
	register(container, supplyRepo)
	register(container, visitRepo)
	register(container, reportingRepo)
	register(container, reviewRepo)
	register(container, amendmentRepo)
	register(container, assuranceRepo)
	register(container, journalRepo)
	register(container, recomputer)
	register(container, planner)
	register(container, aggregator)
	register(container, agreementSvc)
	register(container, interventionSvc)
	register(container, engine)
	register[vendors.Resolver](container, resolver)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.AuthEnabled {
		e.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	}

	checker := health.NewChecker(sqlxDB, redisClient, version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	partnerroutes.Register(api.Group("/partners"))
	agreementroutes.Register(api.Group("/agreements"))
	interventionroutes.Register(api.Group("/interventions"))

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go syncWorker.Run(workerCtx)
	if cfg.SweeperEnabled {
		sw := sweeper.New(cfg, partnerRepo, agreementRepo, interventionRepo, agreementSvc, interventionSvc, aggregator, locker, logger)
		go sw.Run(workerCtx)
	}

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	checker.SetReady(false)
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server")
	}
}

// dependency adapts a pair of closures to the startup interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }

func register[T any](container ectocontainer.DIContainer, instance T) {
	if err := ectoinject.RegisterInstance[T](container, instance); err != nil {
		log.Fatalf("failed to register dependency %T: %v", instance, err)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDatabase(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}
	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

// setupTracing wires the OTLP exporter. Endpoint and headers come from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func setupTracing(ctx context.Context, cfg *config.Config, logger ectologger.Logger) func() {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		logger.WithError(err).Warn("Tracing exporter unavailable, spans will not be exported")
		return func() {}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush tracing spans")
		}
	}
}
