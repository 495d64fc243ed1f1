package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
	// Relay serves GET /ws. Nil leaves the route unregistered.
	Relay http.Handler
	// Limiter throttles the public routes. Nil disables rate limiting.
	Limiter     RateLimiter
	SignupLimit int
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-auth-token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", apiHandler.HealthHandler)
	if opts.Relay != nil {
		r.Method(http.MethodGet, "/ws", opts.Relay)
	}

	public := func(bucket string) func(http.Handler) http.Handler {
		if opts.Limiter == nil || opts.SignupLimit <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		return RateLimit(opts.Limiter, bucket, opts.SignupLimit, time.Minute)
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.With(public("signup")).Post("/customers", apiHandler.CreateCustomerHandler)
		r.With(public("chatbot")).Post("/chatbot", apiHandler.ChatbotHandler)

		// Agent-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware)

			r.Get("/chats", apiHandler.ListChatsHandler)
			r.Post("/chats", apiHandler.StartChatHandler)
			r.Put("/chats/{id}/transfer", apiHandler.TransferChatHandler)
			r.Put("/chats/{id}/status", apiHandler.ChatStatusHandler)

			r.Post("/messages", apiHandler.PostMessageHandler)
			r.Get("/messages/{chatID}", apiHandler.ListMessagesHandler)

			r.Post("/tickets", apiHandler.CreateTicketHandler)
			r.Get("/tickets", apiHandler.ListTicketsHandler)
			r.Put("/tickets/{id}", apiHandler.UpdateTicketHandler)

			r.Get("/customers", apiHandler.ListCustomersHandler)
			r.Get("/customers/stats", apiHandler.CustomerStatsHandler)
			r.Get("/customers/{id}", apiHandler.GetCustomerHandler)
			r.Put("/customers/{id}", apiHandler.UpdateCustomerHandler)
			r.Delete("/customers/{uniqueID}", apiHandler.DeleteCustomerHandler)
			r.Post("/customers/{id}/screenshots", apiHandler.AddScreenshotHandler)
			r.Post("/customers/{id}/questionnaire-responses", apiHandler.AddQuestionnaireHandler)
			r.Put("/customers/{id}/risk-plan", apiHandler.SaveRiskPlanHandler)
			r.Put("/customers/{id}/dashboard", apiHandler.SaveDashboardHandler)

			r.Post("/activity", apiHandler.LogActivityHandler)
			r.Post("/signals", apiHandler.BroadcastSignalHandler)
			r.Get("/knowledge-base/search", apiHandler.SearchKnowledgeHandler)
		})
	})

	return r
}
