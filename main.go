package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"crowpro-api/config"
	"crowpro-api/handlers"
	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/repositories"
	"crowpro-api/services"
	"crowpro-api/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database and redis
	db, err := config.InitDB(cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	rdb, err := config.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	pubRepo := repositories.NewPublicationRepository(db)
	statsRepo := repositories.NewStatsRepository(db)
	logRepo := repositories.NewRequestLogRepository(db)
	tokenRepo := repositories.NewTokenRepository(rdb)

	// Initialize services
	tokenService := services.NewTokenService(cfg.JWT, tokenRepo, userRepo)
	authService := services.NewAuthService(userRepo, tokenService, log)
	userService := services.NewUserService(userRepo, tokenService, store, cfg.Server.MaxUploadBytes, log)
	pubService := services.NewPublicationService(pubRepo, userRepo, store, cfg.Server.MaxUploadBytes, log)
	statsService := services.NewStatsService(statsRepo)
	logService := services.NewRequestLogService(logRepo)

	// Initialize handlers
	httpHelper := helper.NewHTTPHelper(log)
	routes := handlers.Routes{
		Auth:         handlers.NewAuthHandler(authService, cfg.JWT, httpHelper),
		Publications: handlers.NewPublicationHandler(pubService, httpHelper),
		Users:        handlers.NewUserHandler(userService, httpHelper),
		Stats:        handlers.NewStatsHandler(statsService, logService, httpHelper),
		Health:       handlers.NewHealthHandler(db, rdb),
		Verifier:     tokenService,
		Helper:       httpHelper,
	}
	if cfg.RateLimit.Enabled {
		routes.AuthLimit = middleware.NewRateLimiter(rdb, cfg.RateLimit, "auth", httpHelper, log).Handler()
	}

	// Setup router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(log), middleware.CORS(cfg.CORS))
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	if cfg.RequestLog.Enabled {
		var geo middleware.GeoLocator
		if cfg.RequestLog.GeoIPPath != "" {
			geoIP, err := middleware.OpenGeoIP(cfg.RequestLog.GeoIPPath)
			if err != nil {
				log.Warn("geoip database unavailable, request logs will omit location", "error", err)
			} else {
				defer geoIP.Close()
				geo = geoIP
			}
		}
		router.Use(middleware.RequestLog(logService, geo, cfg.RequestLog.MaxBodyBytes, log))
	}

	if local, ok := store.(*storage.LocalStore); ok {
		router.Static("/media", local.Root())
	}

	routes.Register(router)

	// Start server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr, "environment", cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
