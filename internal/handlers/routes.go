package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/auth"
	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var authenticated = []map[string][]string{
	{"cookieAuth": {}},
	{"bearerAuth": {}},
	{"apiKeyAuth": {}},
}

func init() {
	huma.NewError = apierr.NewHumaError
}

func RegisterRoutes(
	r *chi.Mux,
	cfg *config.Config,
	authHandler *auth.AuthHandler,
	eventHandler *EventHandler,
	rsvpHandler *RSVPHandler,
	apiKeyHandler *APIKeyHandler,
) huma.API {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.EnableCORS {
		r.Use(corsMiddleware(cfg.FrontendURL))
	}
	r.Use(authHandler.Identify)

	humaConfig := huma.DefaultConfig("Garage RSVP API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: auth.TokenCookieName,
		},
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
		"apiKeyAuth": {
			Type: "apiKey",
			In:   "header",
			Name: "X-API-KEY",
		},
	}
	api := humachi.New(r, humaConfig)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Discord OAuth is a browser redirect flow, not a JSON operation.
	r.Get("/auth/discord/login", authHandler.HandleDiscordLogin)
	r.Get("/auth/discord/callback", authHandler.HandleDiscordCallback)

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account with email and password",
		Tags:          []string{"Auth"},
		DefaultStatus: http.StatusCreated,
	}, authHandler.HandleRegister)

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in with email and password",
		Tags:        []string{"Auth"},
	}, authHandler.HandleLogin)

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "The logged-in user",
		Tags:        []string{"Auth"},
		Security:    authenticated,
	}, authHandler.HandleMe)

	eventHandler.Register(api)
	rsvpHandler.Register(api)
	apiKeyHandler.Register(api)

	return api
}
