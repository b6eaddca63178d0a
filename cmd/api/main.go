package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/live"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/internal/worker"
)

func main() {
	cfg := config.Load()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// backend is what the API needs from a storage backend.
type backend struct {
	repo    attendance.Repository
	admins  admin.Store
	healthy func(ctx context.Context) bool
	close   func()
}

func openBackend(ctx context.Context, cfg config.App) (backend, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Println("store: in-memory (data is lost on restart)")
		mem := store.NewMemory()
		return backend{repo: mem, admins: mem, healthy: func(context.Context) bool { return true }, close: func() {}}, nil
	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return backend{}, fmt.Errorf("mongo: %w", err)
		}
		log.Printf("store: mongo database %s", cfg.MongoDatabase)
		return backend{repo: m, admins: m, healthy: m.Healthy, close: func() { _ = m.Close(context.Background()) }}, nil
	case "postgres", "":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return backend{}, fmt.Errorf("postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return backend{}, err
			}
		}
		log.Println("store: postgres")
		pg := store.NewPostgres(db.Client)
		return backend{repo: pg, admins: pg, healthy: db.Healthy, close: func() { _ = db.Close() }}, nil
	default:
		return backend{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 15*time.Second)
	be, err := openBackend(startCtx, cfg)
	startCancel()
	if err != nil {
		return err
	}
	defer be.close()

	needRedis := cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis"
	var redisClient *store.Redis
	if needRedis {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultRedisKey)
	}

	hubOpts := live.Options{AllowedOrigins: cfg.CORSOrigins}
	if redisClient != nil {
		hubOpts.Redis = redisClient.Client
	}
	hub := live.NewHub(hubOpts)
	go hub.Run(ctx)

	publisher := queue.Publisher{Queue: q, OnErr: func(err error) { log.Printf("queue publish failed: %v", err) }}
	svc := attendance.NewService(be.repo, attendance.WithNotifier(attendance.Notifiers{hub, publisher}))

	// without a shared queue nobody else will project marks into daily windows
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.NewProjector(svc).Run(ctx, q); err != nil {
				log.Printf("queue consume init failed: %v", err)
			}
		}()
	}

	h := handler.New(svc, admin.NewManager(be.admins), hub, handler.Config{
		Cookie: auth.Cookie{
			Name:       cfg.CookieName,
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			Secure:     cfg.IsProduction(),
		},
		AdminTTL:  cfg.AdminTokenTTL,
		MemberTTL: cfg.MemberTokenTTL,
	})

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := be.healthy(c.Request.Context())
		redisHealthy := true
		if redisClient != nil {
			redisHealthy = redisClient.Healthy(c.Request.Context())
		}
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	cancel()

	log.Println("Server exited")
	return nil
}

// corsMiddleware allows credentialed requests from the configured origins, or
// from any origin when none are configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) > 0 {
		cc.AllowOrigins = origins
	} else {
		cc.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(cc)
}
