package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"lendingledger/docs" // swagger docs

	"lendingledger/internal/auth"
	"lendingledger/internal/cache"
	"lendingledger/internal/config"
	"lendingledger/internal/db"
	"lendingledger/internal/handler"
	"lendingledger/internal/logging"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
	"lendingledger/internal/router"
	"lendingledger/internal/service"
)

// @title Lending Ledger API
// @version 1.0
// @description Users, a catalog of loanable items and the loans between them.
// @host localhost:5000
// @BasePath /
// @schemes http
// @securityDefinitions.apikey AccessToken
// @in header
// @name access-token
// @description Token returned by POST /login.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel)

	gormDB, err := db.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}

	if cfg.ResetDB {
		log.Warn("RESET_DB=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			log.WithError(err).Fatal("reset database")
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if cacheClient.Enabled() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := cacheClient.Ping(pingCtx); err != nil {
			log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unreachable, logout revocation degraded")
		}
		cancel()
	} else {
		log.Info("REDIS_ADDR not set, logout revocation disabled")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	loanItemRepo := repository.NewLoanItemRepository(gormDB)
	modeStore := repository.NewMemoryModeStore(model.DefaultMode)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtService, tokenStore, log)
	userService := service.NewUserService(userRepo, log)
	loanService := service.NewLoanService(loanItemRepo, userRepo, modeStore, log)
	modeService := service.NewModeService(modeStore, userRepo, log)

	if _, err := userService.CreateInitialAdmin(context.Background(), cfg.AdminPassword); err != nil {
		log.WithError(err).Fatal("create initial admin")
	}

	e := echo.New()
	router.Register(
		e,
		log,
		authService,
		service.NewPhoneValidator(),
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewLoanItemHandler(loanService),
		handler.NewModeHandler(modeService),
	)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}
	log.WithField("url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html").Info("swagger documentation available")

	go func() {
		addr := ":" + cfg.ServerPort
		log.WithField("addr", addr).Info("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	log.Info("server stopped")
}
