package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay-backend/internal/cache"
	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/database"
	"chatrelay-backend/internal/queue"
	"chatrelay-backend/internal/repository"
	"chatrelay-backend/internal/services"
	"chatrelay-backend/internal/worker"
)

func main() {
	log.Println("Starting ChatRelay worker...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Initialize Inference Client ────
	inferenceClient, err := services.NewInferenceClient(
		context.Background(),
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		services.DefaultModelConfig(),
	)
	if err != nil {
		log.Fatalf("✗ Inference client initialization failed: %v", err)
	}
	defer inferenceClient.Close()
	log.Println("✓ Inference client initialized")

	// ──── Initialize Repositories & Services ────
	conversationRepo := repository.NewConversationRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	chatService := services.NewChatService(conversationRepo, messageRepo)
	responseCache := cache.New(redisClients.Queue)

	// ──── Initialize Queues ────
	jobQueue := queue.NewJobQueue(redisClients.Queue, queue.DefaultRetryPolicy())
	eventQueue := queue.NewEventQueue(redisClients.Events)

	// Jobs left in-flight by a previous crash go back onto the queue.
	recovered, err := jobQueue.RecoverStale(context.Background())
	if err != nil {
		log.Fatalf("✗ Stale job recovery failed: %v", err)
	}
	if recovered > 0 {
		log.Printf("✓ Requeued %d stale in-flight jobs", recovered)
	}

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	defer pumpCancel()
	jobQueue.StartDelayPump(pumpCtx, time.Second)
	log.Println("✓ Retry delay pump started")

	// ──── Step 5: Start Worker Pool ────
	workerPool := worker.NewPool(
		jobQueue,
		eventQueue,
		responseCache,
		chatService,
		inferenceClient,
		cfg.WorkerConcurrency,
		cfg.WorkerRateLimit,
		time.Duration(cfg.WorkerRateWindow)*time.Second,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerConcurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	pumpCancel()
	workerPool.Stop()
	log.Println("Worker stopped")
}
