package handler

import (
	"net/http"

	"github.com/dandantas/cronlease/internal/model"
	"github.com/dandantas/cronlease/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	healthHandler  *HealthHandler
	clusterHandler *ClusterHandler
	triggerHandler *TriggerHandler
	metrics        http.Handler
}

// NewRouter creates a new router. metrics may be nil.
func NewRouter(
	healthHandler *HealthHandler,
	clusterHandler *ClusterHandler,
	triggerHandler *TriggerHandler,
	metrics http.Handler,
) *Router {
	return &Router{
		healthHandler:  healthHandler,
		clusterHandler: clusterHandler,
		triggerHandler: triggerHandler,
		metrics:        metrics,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.HandleFunc("/ready", rt.healthHandler.Ready)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}

	mux.HandleFunc("/api/v1/cluster/nodes", rt.clusterHandler.Nodes)
	mux.HandleFunc("/api/v1/cluster/locks", rt.clusterHandler.Locks)
	mux.HandleFunc("/api/v1/triggers", rt.handleTriggers)
	mux.HandleFunc("/api/v1/triggers/", rt.handleTriggersWithKey)

	handler := middleware.Recovery(mux)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}

// handleTriggers routes trigger collection endpoints
func (rt *Router) handleTriggers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.triggerHandler.List(w, r)
	case http.MethodPost:
		rt.triggerHandler.Create(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTriggersWithKey routes /api/v1/triggers/{group}/{name}
func (rt *Router) handleTriggersWithKey(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/v1/triggers/")
	if len(segments) != 2 {
		writeError(w, r, http.StatusNotFound, "Endpoint not found")
		return
	}
	key := model.NewKey(segments[0], segments[1])

	switch r.Method {
	case http.MethodGet:
		rt.triggerHandler.Get(w, r, key)
	case http.MethodDelete:
		rt.triggerHandler.Delete(w, r, key)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
