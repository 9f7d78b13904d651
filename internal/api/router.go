package api

import (
	"log/slog"
	"net/http"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/broker"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/bus"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/gateway"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/notify"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(
	docs store.DocumentStore,
	b *bus.Bus,
	brk *broker.Broker,
	scanner *notify.Scanner,
	gw *gateway.Gateway,
	health http.HandlerFunc,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	// Handlers
	appHandler := NewApplicationHandler(docs, b, brk, scanner, logger)
	notifHandler := NewNotificationHandler(docs, logger)
	rtHandler := NewRealtimeHandler(brk, gw)

	// WebSocket endpoint for real-time notification fanout
	r.Get("/ws/notifications/{userID}", gw.HandleNotifications)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Route("/applications", func(r chi.Router) {
				r.Post("/", appHandler.Create)
				r.Get("/", appHandler.List)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notifHandler.List)
				r.Post("/{id}/read", notifHandler.MarkRead)
			})
		})

		r.Get("/realtime/channels", rtHandler.Channels)
	})

	return r
}

// corsMiddleware adds CORS headers for frontend development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
