package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/internal/worker"
)

// Worker consumes attendance.marked events and files them into daily attendance windows.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is consumed inside the api process; run the worker with redis")
	}

	repo, closeRepo := openRepository(ctx, cfg)
	defer closeRepo()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultRedisKey)
	svc := attendance.NewService(repo)

	log.Println("worker started, waiting for messages...")
	if err := worker.NewProjector(svc).Run(ctx, q); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
	log.Println("worker stopped")
}

func openRepository(ctx context.Context, cfg config.App) (attendance.Repository, func()) {
	switch cfg.StoreBackend {
	case "mongo":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongo connect failed: %v", err)
		}
		return m, func() { _ = m.Close(context.Background()) }
	case "postgres", "":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		return store.NewPostgres(db.Client), func() { _ = db.Close() }
	default:
		log.Fatalf("STORE_BACKEND %q cannot be shared with the worker", cfg.StoreBackend)
		return nil, nil
	}
}
