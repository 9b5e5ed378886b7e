package routes

import (
	"github.com/cfarena/tournament-system/handlers"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func SetupRoutes(
	router *chi.Mux,
	allowedOrigins []string,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/api/tournaments", func(r chi.Router) {
		r.Post("/", tournamentHandler.Create)
		r.Post("/join", tournamentHandler.Join)
		r.Post("/check-submissions", tournamentHandler.CheckSubmissions)
		r.Get("/{code}", tournamentHandler.Get)
		r.Post("/{code}/matches/{matchID}/start", tournamentHandler.StartMatch)
	})

	router.Get("/ws", webSocketHandler.ServeWS)
}
