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

	"chatrelay-backend/internal/config"
	"chatrelay-backend/internal/database"
	"chatrelay-backend/internal/handlers"
	"chatrelay-backend/internal/queue"
	"chatrelay-backend/internal/repository"
	"chatrelay-backend/internal/router"
	"chatrelay-backend/internal/services"
	"chatrelay-backend/internal/websocket"
)

func main() {
	log.Println("Starting ChatRelay gateway...")

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

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories & Services ────
	conversationRepo := repository.NewConversationRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	chatService := services.NewChatService(conversationRepo, messageRepo)

	// ──── Initialize Queues ────
	jobQueue := queue.NewJobQueue(redisClients.Queue, queue.DefaultRetryPolicy())
	eventQueue := queue.NewEventQueue(redisClients.Events)

	// ──── Step 5: Start WebSocket Hub & Delivery Relay ────
	wsHub := websocket.NewHub(chatService, jobQueue)
	relayCtx, relayCancel := context.WithCancel(context.Background())
	relay := websocket.NewRelay(eventQueue, wsHub)
	go relay.Run(relayCtx)
	log.Println("✓ WebSocket hub and delivery relay started")

	// ──── Step 6: Start HTTP Server ────
	chatHandler := handlers.NewChatHandler(chatService, jobQueue)
	r := router.New(chatHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		relayCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ChatRelay gateway ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
