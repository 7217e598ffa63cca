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

	_ "libraryhub/api/swagger" // swagger docs
	"libraryhub/internal/config"
	"libraryhub/internal/dashboard"
	"libraryhub/internal/database"
	"libraryhub/internal/events"
	"libraryhub/internal/handler"
	"libraryhub/internal/middleware"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"
	"libraryhub/internal/service"
	"libraryhub/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           LibraryHub API
// @version         1.0
// @description     Book loan requests with real-time notifications for staff and borrowers.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		slog.Info("No configs/.env file found or error loading it")
	}

	cfg := config.Load()
	setupLogger(cfg.GinMode)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg)
	if err != nil {
		slog.Error("database connection failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)
	for _, role := range []string{model.RoleUser, model.RoleStaff, model.RoleAdmin, model.RoleSuperAdmin} {
		if _, err := repos.Roles.FindOrCreate(ctx, role, ""); err != nil {
			slog.Error("failed to seed role", "role", role, "error", err)
			os.Exit(1)
		}
	}

	// Set up real-time delivery
	wsHub := websocket.NewHub(slog.Default())
	go wsHub.Run(ctx)
	transport := buildTransport(ctx, cfg, wsHub)
	dispatcher := events.NewDispatcher(transport, slog.Default())
	aggregator := dashboard.NewAggregator(dispatcher)
	slog.Info("event transport selected", "transport", string(dispatcher.Transport()))

	// Set up dependencies (Repository -> Service -> Handler)
	loanRequestService := service.NewLoanRequestService(repos, dispatcher, aggregator, cfg.LoanPeriodDays)
	loanService := service.NewLoanService(repos, dispatcher, aggregator, cfg.LoanFinePerDay)
	bookService := service.NewBookService(repos, aggregator)
	userService := service.NewUserService(repos, aggregator)
	catalogService := service.NewCatalogService(repos, aggregator)
	dashboardService := service.NewDashboardService(repos.Dashboard)
	activityLogService := service.NewActivityLogService(repos.Activities)

	auth := middleware.NewAuthenticator(cfg.JWTSecret)
	limiter := middleware.NewSubmitLimiter(cfg.SubmitRatePerMinute, cfg.SubmitRateBurst)

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, auth, c)
	})

	api := router.Group("/api", auth.RequireAuth())
	handler.NewLoanRequestHandler(loanRequestService, limiter).RegisterRoutes(api)
	handler.NewLoanHandler(loanService).RegisterRoutes(api)
	handler.NewBookHandler(bookService).RegisterRoutes(api)
	handler.NewUserHandler(userService).RegisterRoutes(api)
	handler.NewCatalogHandler(catalogService).RegisterRoutes(api)
	handler.NewDashboardHandler(dashboardService, activityLogService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func setupLogger(mode string) {
	var h slog.Handler
	if mode == gin.ReleaseMode {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}

// buildTransport wires the configured backend. With redis, this instance publishes
// to redis and relays what it receives into its own hub. A redis outage at startup
// degrades to the log sink.
func buildTransport(ctx context.Context, cfg *config.Config, hub *websocket.Hub) events.Transport {
	switch events.SelectTransport(cfg.Broadcast) {
	case events.TransportWebsocket:
		return hub
	case events.TransportRedis:
		client, err := events.OpenRedis(cfg.Broadcast.RedisAddr, cfg.Broadcast.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, falling back to log transport", "addr", cfg.Broadcast.RedisAddr, "error", err)
			return events.NewLogTransport(slog.Default())
		}
		relay := events.NewRelay(client, cfg.Broadcast.RedisChannel, hub, slog.Default())
		go func() {
			if err := relay.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("redis relay stopped", "error", err)
			}
		}()
		return events.NewRedisTransport(client, cfg.Broadcast.RedisChannel)
	case events.TransportNull:
		return events.NullTransport{}
	default:
		return events.NewLogTransport(slog.Default())
	}
}
