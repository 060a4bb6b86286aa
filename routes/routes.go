package routes

import (
	"net/http"
	"time"

	_ "github.com/Dosada05/league-standings/docs"
	"github.com/Dosada05/league-standings/handlers"
	"github.com/Dosada05/league-standings/middleware"
	"github.com/Dosada05/league-standings/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func SetupRoutes(
	router *chi.Mux,
	opts Options,
	standingsHandler *handlers.StandingsHandler,
	webSocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler.Health)
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Websocket connections are long-lived, so they stay outside the request timeout.
	router.Get("/ws/standings/{tableID}", webSocketHandler.ServeWs)

	authenticate := middleware.Authenticate(opts.JWTSecret)
	manageStandings := middleware.Authorize(models.RoleAdmin, models.RoleOrganizer)

	router.Route("/api/standings", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
		}

		r.Get("/", standingsHandler.ListTables)
		r.Get("/{tableID}", standingsHandler.GetTable)
		r.Get("/{tableID}/leaderboard", standingsHandler.GetLeaderboard)
		r.Get("/{tableID}/teams/{teamName}", standingsHandler.GetTeamStanding)
		r.Get("/{tableID}/results", standingsHandler.ListMatchResults)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(manageStandings)

			r.Post("/", standingsHandler.CreateTable)
			r.Post("/{tableID}/results", standingsHandler.RecordMatchResult)
			r.Post("/{tableID}/snapshot", standingsHandler.PublishSnapshot)
			r.Delete("/{tableID}/teams/{teamName}", standingsHandler.RemoveTeam)
			r.Delete("/{tableID}", standingsHandler.DeleteTable)
		})
	})
}
