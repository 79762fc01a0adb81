package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/config"
	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/database"
	"github.com/yukikurage/family-task-sync/internal/handlers"
	"github.com/yukikurage/family-task-sync/internal/outbox"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"github.com/yukikurage/family-task-sync/internal/repository"
	"github.com/yukikurage/family-task-sync/internal/services"
	"github.com/yukikurage/family-task-sync/internal/syncengine"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the local database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Connect to the remote store
	store, err := openRemoteStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open remote store: %v", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	// Sync engine and write routing
	db := database.GetDB()
	offline := repository.NewOfflineRepository(db)
	box := outbox.New(repository.NewOutboxRepository(db), cfg.SyncMaxRetries)
	engine := syncengine.New(syncengine.Config{
		Outbox:      box,
		Store:       store,
		Offline:     offline,
		StartOnline: cfg.StartOnline,
	})
	router := repository.NewRouter(store, box, engine)

	go logFailures(ctx, engine)

	// Repositories and services
	familyRepo := repository.NewFamilyRepository(db)
	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(router, offline)

	historyService := services.NewHistoryService(repository.NewHistoryRepository(db), router, cfg.HistoryRetentionDays)
	approvalService := services.NewApprovalService(
		repository.NewApprovalRepository(router, offline),
		taskRepo,
		familyRepo,
		historyService,
		services.NewRemoteNotifier(router),
	)
	taskService := services.NewTaskService(taskRepo, offline, router, familyRepo, approvalService, historyService)

	go pruneHistory(ctx, historyService)

	// Initialize Gin router
	r := gin.Default()
	r.Use(cors.Default())

	sessionStore, err := newSessionStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create session store: %v", err)
	}
	// Configure session options based on environment
	isProduction := cfg.GinMode == "release"
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, sessionStore))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Family task sync is running",
			"online":  engine.IsOnline(),
		})
	})

	handlers.RegisterRoutes(r, handlers.Services{
		Auth:      services.NewAuthService(userRepo),
		Families:  services.NewFamilyService(familyRepo, userRepo),
		Tasks:     taskService,
		Approvals: approvalService,
		History:   historyService,
		Engine:    engine,
		Outbox:    box,
	})

	// Flush anything queued by a previous run
	if engine.IsOnline() {
		if _, err := engine.Trigger(ctx); err != nil {
			log.Printf("Initial drain failed: %v", err)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

func openRemoteStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.RemoteStore {
	case "firestore":
		log.Printf("Using Firestore remote store (project %q)", cfg.FirestoreProjectID)
		return remote.NewFirestoreStore(ctx, cfg.FirestoreProjectID, cfg.CredentialsFile)
	default:
		log.Println("Using in-memory remote store; data is lost on restart")
		return remote.NewMemoryStore(), nil
	}
}

func newSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.SessionStore != "redis" {
		return cookie.NewStore([]byte(cfg.SessionSecret)), nil
	}

	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	return redisStore.NewStore(
		10,        // Redis pool size
		"tcp",     // network type
		redisAddr, // Redis address from config
		"",        // username (empty for default user)
		"",        // password (empty = no password)
		[]byte(cfg.SessionSecret), // authentication key
	)
}

// logFailures reports operations the sync engine gave up on.
func logFailures(ctx context.Context, engine *syncengine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case failure := <-engine.Failures():
			log.Printf("Sync failed permanently for %s %s (id %s): %v",
				failure.Operation.Type, failure.Operation.DocKey(), failure.Operation.ID, failure.Err)
		}
	}
}

// pruneHistory drops expired history at startup and once a day after that.
func pruneHistory(ctx context.Context, history *services.HistoryService) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if result := history.Prune(ctx); !result.IsSuccess {
			log.Printf("History prune failed: %s", result.Error)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
