package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/FACorreiaa/go-comment-suggestions/docs"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/comments"
	"github.com/FACorreiaa/go-comment-suggestions/internal/api/subscription"
	userProfiles "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_profiles"
	userSettings "github.com/FACorreiaa/go-comment-suggestions/internal/api/user_settings"
)

// Config contains dependencies needed for the router setup
type Config struct {
	CommentsHandler        *comments.CommentsHandler
	ProfilesHandler        *userProfiles.UserProfilesHandler
	SettingsHandler        *userSettings.SettingsHandler
	SubscriptionHandler    *subscription.SubscriptionHandler
	AuthenticateMiddleware func(http.Handler) http.Handler
	AllowedOrigins         []string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (request id, logger, recoverer) is applied in main.go
// before this router is mounted.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		// The processor authenticates with its signature, not a session.
		r.Post("/webhooks/stripe", cfg.SubscriptionHandler.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/comments/generate", cfg.CommentsHandler.GenerateComments)
			r.Get("/comments", cfg.CommentsHandler.ListComments)
			r.Delete("/comments", cfg.CommentsHandler.ClearComments)

			r.Get("/usage", cfg.ProfilesHandler.GetUsage)

			r.Get("/settings", cfg.SettingsHandler.GetUserSettings)
			r.Put("/settings", cfg.SettingsHandler.UpdateUserSettings)

			r.Get("/subscription", cfg.SubscriptionHandler.GetSubscription)
			r.Post("/subscription", cfg.SubscriptionHandler.CreateSubscription)
			r.Post("/subscription/manage", cfg.SubscriptionHandler.ManageSubscription)
			r.Get("/billing/history", cfg.SubscriptionHandler.GetBillingHistory)
		})
	})

	return r
}
