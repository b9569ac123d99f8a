package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdship-platform/internal/auth"
	"crowdship-platform/internal/config"
	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/httpapi"
	"crowdship-platform/internal/observability"
	"crowdship-platform/internal/platform"
	"crowdship-platform/internal/reconcile"
	"crowdship-platform/internal/wallet"
	"crowdship-platform/pkg/logger"
	"crowdship-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "wallet-api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	observability.Register()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	platformSvc := platform.NewService(platform.NewPostgresRepo(db), rdb)

	chapa := gateway.NewChapaClient(gateway.ChapaConfig{
		BaseURL:            cfg.Chapa.BaseURL,
		SecretKey:          cfg.Chapa.SecretKey,
		CallbackURL:        cfg.Chapa.CallbackURL,
		ReturnURL:          cfg.Chapa.ReturnURL,
		Timeout:            cfg.Chapa.Timeout,
		AllowTestTransfers: cfg.Chapa.AllowTestTransfers,
	})

	// Wallet currency follows platform config; the store default only
	// applies to wallets created before config exists.
	store := wallet.NewPostgresStore(db, "ETB")
	walletSvc := wallet.NewService(store, platformSvc)
	fundingSvc := wallet.NewFundingService(walletSvc, chapa, log)

	webhook := reconcile.NewWebhookProcessor(
		gateway.NewSignatureVerifier(cfg.Chapa.WebhookSecret), fundingSvc, log)
	sweeper := reconcile.NewSweeper(store, fundingSvc, rdb, log,
		cfg.Sweep.Interval, cfg.Sweep.BatchLimit, cfg.Sweep.ItemTimeout)
	bankSync := reconcile.NewBankSync(chapa, platformSvc, log)

	go sweeper.Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Wallet:      walletSvc,
		Funding:     fundingSvc,
		Platform:    platformSvc,
		Webhook:     webhook,
		Sweeper:     sweeper,
		BankSync:    bankSync,
		GatewayCode: chapa.Code(),
	}
	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
