// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/chat"
	"github.com/swapmeet/marketplace/backend/internal/items"
	"github.com/swapmeet/marketplace/backend/internal/logging"
	"github.com/swapmeet/marketplace/backend/internal/metrics"
	"github.com/swapmeet/marketplace/backend/internal/middleware"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

// Deps are the services the router exposes.
type Deps struct {
	Log         *logrus.Logger
	Metrics     *metrics.Metrics
	Debug       bool
	CORSOrigins []string

	Auth   *auth.Service
	Tokens *auth.TokenIssuer
	Items  *items.Service
	Relay  *chat.Relay

	Journal          chat.JournalReader // optional
	RelayRequireAuth bool
	AuthLimiter      *middleware.RateLimiter // optional
}

func NewRouter(d Deps) http.Handler {
	errs := response.Writer{Log: d.Log, Debug: d.Debug}
	authHandler := auth.NewHandler(d.Auth, errs)
	itemHandler := items.NewHandler(d.Items, errs)
	chatHandler := chat.NewHandler(chat.HandlerConfig{
		Relay:          d.Relay,
		Tokens:         d.Tokens,
		Admins:         d.Auth,
		Journal:        d.Journal,
		RequireAuth:    d.RelayRequireAuth,
		AllowedOrigins: d.CORSOrigins,
		Errors:         errs,
		Log:            d.Log,
	})
	requireAuth := middleware.RequireAuth(d.Tokens)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Requests(d.Log))
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, "Server is running", map[string]int{"connections": d.Relay.Rooms().Len()})
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	r.Get("/ws", chatHandler.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if d.AuthLimiter != nil {
				r.Use(d.AuthLimiter.Handler)
			}
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.Me)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/password", authHandler.ChangePassword)
			})
		})

		r.With(requireAuth).Delete("/users/{id}", authHandler.DeleteUser)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)
			r.With(requireAuth).Get("/mine", itemHandler.Mine)
			r.Get("/{id}", itemHandler.Get)
			r.Get("/{id}/image", itemHandler.Image)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", itemHandler.Create)
				r.Put("/{id}", itemHandler.Update)
				r.Delete("/{id}", itemHandler.Delete)
				r.Post("/{id}/image", itemHandler.UploadImage)
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", chatHandler.Send)
			r.Get("/chats", chatHandler.UserChats)
			r.Get("/item/{itemId}", chatHandler.ItemMessages)
		})

		r.With(requireAuth).Get("/admin/journal", chatHandler.Journal)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusNotFound, "Route not found")
	})
	return r
}
