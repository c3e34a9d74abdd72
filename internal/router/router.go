package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"chatrelay-backend/internal/handlers"
	"chatrelay-backend/internal/middleware"
	"chatrelay-backend/internal/websocket"
)

func New(
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Message ingress rate limiter (30 req/min per IP)
	messageLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Conversation Routes ────
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", chatHandler.CreateConversation)
			r.Get("/", chatHandler.ListConversations)
			r.Get("/{id}", chatHandler.GetConversation)
			r.Get("/{id}/messages", chatHandler.ListMessages)

			r.Group(func(r chi.Router) {
				r.Use(messageLimiter.Middleware)
				r.Post("/{id}/messages", chatHandler.SendMessage)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
