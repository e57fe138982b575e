// Package app wires the fund layer's services, storage, and HTTP surface
// into one lifecycle-managed application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/fund_layer/internal/adapters/neochain"
	"github.com/R3E-Network/fund_layer/internal/adapters/sim"
	"github.com/R3E-Network/fund_layer/internal/app/httpapi"
	"github.com/R3E-Network/fund_layer/internal/app/metrics"
	escrowsvc "github.com/R3E-Network/fund_layer/internal/app/services/escrow"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/services/keeper"
	"github.com/R3E-Network/fund_layer/internal/app/storage"
	"github.com/R3E-Network/fund_layer/internal/app/storage/memory"
	"github.com/R3E-Network/fund_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/fund_layer/internal/app/system"
	"github.com/R3E-Network/fund_layer/internal/chain"
	"github.com/R3E-Network/fund_layer/internal/config"
	"github.com/R3E-Network/fund_layer/internal/middleware"
	"github.com/R3E-Network/fund_layer/internal/platform/migrations"
	"github.com/R3E-Network/fund_layer/internal/vault"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// Stores encapsulates persistence dependencies. Nil stores default to a
// shared in-memory implementation.
type Stores struct {
	Transactions storage.TransactionStore
	Positions    storage.PositionStore
	Reservations storage.ReservationStore
	Adapters     storage.AdapterStore
	Devices      storage.DeviceStore
	Rentals      storage.RentalStore
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	manager *system.Manager
	db      *sql.DB
	server  *http.Server
	handler http.Handler

	Fund   *fundsvc.Service
	Escrow *escrowsvc.Service
	Keeper *keeper.Keeper
}

// New builds a fully wired application from the configuration.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if log == nil {
		log = logger.New(logger.Config{Component: "app", Level: cfg.Logging.Level, JSON: cfg.Logging.JSON})
	}

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, err
	}

	pool := vault.New(vault.Config{
		Asset:              cfg.Vault.Asset,
		MinInvestment:      cfg.Vault.MinInvestment,
		InvestmentRatioBps: cfg.Vault.InvestmentRatioBps,
		RebalanceInterval:  cfg.Vault.RebalanceInterval,
		Logger:             log.WithField("component", "vault"),
	})

	fundService, err := fundsvc.New(fundsvc.Config{
		Vault:        pool,
		Transactions: stores.Transactions,
		Positions:    stores.Positions,
		Reservations: stores.Reservations,
		Adapters:     stores.Adapters,
		Logger:       log.WithField("component", "fund"),
	})
	if err != nil {
		return nil, err
	}

	escrowService, err := escrowsvc.New(escrowsvc.Config{
		Fund:    fundService,
		Devices: stores.Devices,
		Rentals: stores.Rentals,
		Logger:  log.WithField("component", "escrow"),
	})
	if err != nil {
		return nil, err
	}

	if err := registerAdapters(cfg, fundService, log); err != nil {
		return nil, err
	}

	keeperService, err := keeper.New(fundService, keeper.Config{
		HarvestSchedule:   cfg.Keeper.HarvestSchedule,
		RebalanceSchedule: cfg.Keeper.RebalanceSchedule,
		Logger:            log.WithField("component", "keeper"),
	})
	if err != nil {
		return nil, err
	}

	manager := system.NewManager()
	if err := manager.Register(keeperService); err != nil {
		return nil, err
	}

	apiCfg := httpapi.Config{
		Fund:    fundService,
		Escrow:  escrowService,
		Version: Version,
		Logger:  log.WithField("component", "httpapi"),
	}
	if cfg.Auth.JWTSecret != "" {
		apiCfg.Admin = middleware.RequireAdmin
	}
	apiHandler, err := httpapi.New(apiCfg)
	if err != nil {
		return nil, err
	}

	handler, err := buildHandlerChain(cfg, apiHandler, log)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:     cfg,
		log:     log,
		manager: manager,
		db:      db,
		handler: handler,
		Fund:    fundService,
		Escrow:  escrowService,
		Keeper:  keeperService,
	}
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return app, nil
}

// Handler exposes the fully wrapped HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler { return a.handler }

// Run hydrates state, starts the background services, and serves HTTP until
// the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Fund.Hydrate(ctx, a.cfg.Vault.IdleBalance); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, background services, and storage.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("http server shutdown")
	}
	if err := a.manager.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("service manager stop")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("closing database connection")
		}
	}
	return nil
}

// buildStores opens Postgres when a DSN is configured, otherwise falls back
// to the shared in-memory store.
func buildStores(cfg *config.Config, log *logger.Logger) (Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_DSN not set; using in-memory storage")
		mem := memory.New()
		return Stores{
			Transactions: mem, Positions: mem, Reservations: mem,
			Adapters: mem, Devices: mem, Rentals: mem,
		}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.Apply(context.Background(), db); err != nil {
		db.Close()
		return Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := postgres.New(db)
	return Stores{
		Transactions: store, Positions: store, Reservations: store,
		Adapters: store, Devices: store, Rentals: store,
	}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// registerAdapters wires yield strategies into the vault. With an RPC URL
// configured the deployed strategy contracts are used; otherwise simulated
// strategies keep local development functional.
func registerAdapters(cfg *config.Config, fundService *fundsvc.Service, log *logger.Logger) error {
	ctx := context.Background()

	if cfg.Chain.RPCURL == "" {
		log.Warn("NEO_RPC_URL not set; registering simulated strategies")
		flamingo, err := sim.New(sim.Config{ID: "flamingo-sim", APYBps: 850})
		if err != nil {
			return err
		}
		burger, err := sim.New(sim.Config{ID: "burger-sim", APYBps: 620})
		if err != nil {
			return err
		}
		if err := fundService.AddAdapter(ctx, flamingo, 6000); err != nil {
			return err
		}
		return fundService.AddAdapter(ctx, burger, 4000)
	}

	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.Chain.RPCURL,
		NetworkID: cfg.Chain.NetworkID,
	})
	if err != nil {
		return err
	}

	contracts := chain.ContractAddressesFromEnv()
	type strategy struct {
		id, hash string
		weight   int64
	}
	strategies := []strategy{
		{"flamingo", contracts.Flamingo, 6000},
		{"burger", contracts.Burger, 4000},
	}

	registered := 0
	for _, s := range strategies {
		if s.hash == "" {
			log.WithField("strategy", s.id).Warn("no contract hash configured; skipping strategy")
			continue
		}
		adapter, err := neochain.New(neochain.Config{
			ID:      s.id,
			Account: cfg.Chain.Account,
			Logger:  log.WithField("adapter", s.id),
		})
		if err != nil {
			return err
		}
		deployment, err := neochain.NewDeployment(s.id, s.hash, client)
		if err != nil {
			return err
		}
		if err := adapter.AddDeployment(deployment, 10000, true); err != nil {
			return err
		}
		if err := fundService.AddAdapter(ctx, adapter, s.weight); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("no strategy contracts configured; set CONTRACT_FLAMINGO_HASH or CONTRACT_BURGER_HASH")
	}
	return nil
}

// buildHandlerChain wraps the API router with the middleware stack.
func buildHandlerChain(cfg *config.Config, apiHandler *httpapi.Handler, log *logger.Logger) (http.Handler, error) {
	var handler http.Handler = apiHandler.Router()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst,
		log.WithField("component", "ratelimit"))
	handler = limiter.Handler(handler)

	if cfg.Auth.JWTSecret != "" {
		auth, err := middleware.NewAuth(cfg.Auth.JWTSecret, log.WithField("component", "auth"),
			[]string{"/health", "/info", "/metrics"})
		if err != nil {
			return nil, err
		}
		handler = auth.Handler(handler)
	} else {
		log.Warn("JWT_SECRET not set; API authentication disabled")
	}

	if len(cfg.CORSOrigins) > 0 {
		handler = middleware.NewCORS(cfg.CORSOrigins).Handler(handler)
	}

	return metrics.InstrumentHandler(handler), nil
}
