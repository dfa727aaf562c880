package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/middleware"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Search   *SearchHandler
	Chat     *ChatHandler
	Stream   *StreamHandler
	Ingest   *IngestHandler
	Health   *HealthHandler
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
	Logger   *logging.StructuredLogger

	AllowedOrigins []string
}

// NewRouter assembles the service router with its middleware chain.
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.Logging(deps.Logger))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	router.HandleFunc("/healthz", deps.Health.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", deps.Health.Readyz).Methods(http.MethodGet)
	if deps.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	router.HandleFunc("/search/hybrid", deps.Search.HybridSearch).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/search/smart", deps.Search.SmartSearch).Methods(http.MethodPost, http.MethodOptions)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ask/", deps.Chat.Ask).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stream-chat/", deps.Stream.StreamChat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/chats/", deps.Chat.CreateChats).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/chats/", deps.Chat.ListChats).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}", deps.Chat.GetChat).Methods(http.MethodGet)
	api.HandleFunc("/chats/{id}", deps.Chat.DeleteChat).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/documents/", deps.Ingest.Ingest).Methods(http.MethodPost, http.MethodOptions)

	return router
}
