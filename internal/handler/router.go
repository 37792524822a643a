package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	clockHandler "github.com/talentsim/backend/internal/handler/clock"
	monitorHandler "github.com/talentsim/backend/internal/handler/monitor"
	personaHandler "github.com/talentsim/backend/internal/handler/persona"
	sessionHandler "github.com/talentsim/backend/internal/handler/session"
	middlewarePkg "github.com/talentsim/backend/internal/middleware"
	personaModel "github.com/talentsim/backend/internal/model/persona"
	sessionService "github.com/talentsim/backend/internal/service/session"
	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/pkg/logger"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	personas personaModel.Store,
	sessions *sessionService.Service,
	authority *timer.Authority,
	clockCfg timer.ClockConfig,
	log *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		personaHandler.New(personas).RegisterRoutes(api)
		sessionHandler.New(sessions).RegisterRoutes(api)
		clockHandler.New(authority, clockCfg, log).RegisterRoutes(api)
		monitorHandler.New(authority, log).RegisterRoutes(api)
	})

	return r
}
