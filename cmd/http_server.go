package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/assets"
	"github.com/wingscash/books-gateway/internal/auth"
	authpg "github.com/wingscash/books-gateway/internal/auth/postgres"
	"github.com/wingscash/books-gateway/internal/cash"
	"github.com/wingscash/books-gateway/internal/coa"
	"github.com/wingscash/books-gateway/internal/core/events"
	"github.com/wingscash/books-gateway/internal/pending"
	pendingpg "github.com/wingscash/books-gateway/internal/pending/postgres"
	"github.com/wingscash/books-gateway/internal/receipts"
	"github.com/wingscash/books-gateway/internal/transport/rest"
	"github.com/wingscash/books-gateway/internal/transport/swagger"
	"github.com/wingscash/books-gateway/internal/zoho"
	"github.com/wingscash/books-gateway/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	EventBus *events.EventBus
	Handlers rest.Handlers
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Handlers,
		deps.Config.Storage.UploadsDir, deps.Config.Server.AllowedOrigins, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	// A broken OpenAPI document should fail here, not at first render.
	if _, statErr := os.Stat("./api/openapi.yml"); statErr == nil {
		if err := swagger.ValidateSpec(context.Background(), "./api/openapi.yml"); err != nil {
			return nil, fmt.Errorf("openapi spec invalid: %w", err)
		}
	} else {
		lg.Warn("openapi spec not found, swagger UI will be empty", "path", "./api/openapi.yml")
	}

	eventBus := events.NewEventBus(lg)
	registerAuditHandlers(eventBus, lg)

	// Auth stack
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	userRepo := authpg.NewUserRepository(gormDB)
	authService := auth.NewService(userRepo, tokenGen, config.Security.BCryptCost)
	authHandler := auth.NewHandler(authService)

	// Chart of accounts; a missing CSV degrades to an empty chart
	// instead of blocking startup.
	coaStore, err := coa.NewStore(config.Storage.COACSVPath,
		config.Storage.AccruedAccountID, config.Storage.AccruedAccountName, lg)
	if err != nil {
		lg.Warn("chart of accounts unavailable", "error", err)
		coaStore = coa.NewEmptyStore(config.Storage.AccruedAccountID, config.Storage.AccruedAccountName, lg)
	}

	// Zoho client only when posting is enabled; the workflow treats a
	// nil client as "approve locally, post nothing".
	var zohoClient *zoho.Client
	var books pending.BooksClient
	var banks cash.BankAccounts
	var fixedAssets assets.FixedAssetsClient
	if config.Zoho.Enabled {
		zohoClient = zoho.NewClient(config.Zoho, lg)
		books = zohoClient
		banks = zohoClient
		fixedAssets = zohoClient
	}

	receiptStore := receipts.NewStorage(config.Storage.UploadsDir)

	pendingRepo := pendingpg.NewPendingRepository(gormDB)
	pendingService := pending.NewService(pendingRepo, books, coaStore, receiptStore, eventBus, lg)
	pendingHandler := pending.NewHandler(pendingService)

	cashService := cash.NewService(banks, pendingService, lg)
	cashHandler := cash.NewHandler(cashService)

	assetsService := assets.NewService(fixedAssets, nil, lg)
	assetsHandler := assets.NewHandler(assetsService)

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		GormDB:   gormDB,
		Router:   chi.NewRouter(),
		EventBus: eventBus,
		Handlers: rest.Handlers{
			Auth:    authHandler,
			Pending: pendingHandler,
			COA:     coa.NewHandler(coaStore),
			Cash:    cashHandler,
			Zoho:    zoho.NewHandler(zohoClient),
			Assets:  assetsHandler,
		},
	}, nil
}

// registerAuditHandlers subscribes structured-log sinks for workflow
// events. Handler failures never affect the workflow result.
func registerAuditHandlers(bus *events.EventBus, lg *slog.Logger) {
	audit := func(ctx context.Context, event events.Event) error {
		lg.Info("audit",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"payload", event.Payload())
		return nil
	}
	bus.Subscribe(events.ExpenseCreated, audit)
	bus.Subscribe(events.ExpenseApproved, audit)
	bus.Subscribe(events.ExpenseRejected, audit)
	bus.Subscribe(events.AccruedCleared, audit)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the existing connection pool for the repositories.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{})
}
