package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/session"
	"github.com/pitabwire/gridview/internal/tables"
	"github.com/pitabwire/gridview/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Tables             *tables.TableProvider
	Views              *session.Manager
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	HealthHandler      http.Handler
	ReadyHandler       http.Handler
	MetricsHandler     http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(observability.TracingMiddleware)
	r.Use(deps.Metrics.MetricsMiddleware)
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID(logger))
	r.Use(SecurityHeaders)

	// Public routes, no authentication.
	r.Method(http.MethodGet, "/ui/health", orDefault(deps.HealthHandler, observability.HandleHealth()))
	if deps.ReadyHandler != nil {
		r.Method(http.MethodGet, "/ui/ready", deps.ReadyHandler)
	}
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, orDefault(deps.MetricsHandler, observability.Handler()))
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = DevAuthenticator(deps.Config.Identity)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if deps.Tables != nil {
			r.Get("/ui/tables", handleListTables(deps.Tables))
			r.Get("/ui/tables/{tableId}", handleGetTable(deps.Tables))
			r.Get("/ui/tables/{tableId}/data", handleGetTableData(deps.Tables))
			r.Get("/ui/tables/{tableId}/filters/{field}/options", handleGetFilterOptions(deps.Tables))
			r.Post("/ui/tables/{tableId}/refresh", handleRefreshTable(deps.Tables))
		}
		if deps.Views != nil {
			r.Post("/ui/tables/{tableId}/views", handleOpenView(deps.Views))
			r.Get("/ui/views/{viewId}", handleGetView(deps.Views))
			r.Post("/ui/views/{viewId}/events", handleViewEvents(deps.Views))
			r.Delete("/ui/views/{viewId}", handleCloseView(deps.Views))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, r, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		traceID, _ := observability.SpanIDs(r.Context())
		WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: &model.ErrorEnvelope{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "method not allowed",
			TraceID: traceID,
		}})
	})

	return r
}

func orDefault(h, def http.Handler) http.Handler {
	if h != nil {
		return h
	}
	return def
}
