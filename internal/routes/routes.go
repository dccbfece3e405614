package routes

import (
	"net/http"

	"fishcam/internal/handlers"
	"fishcam/internal/logger"
	"fishcam/internal/middleware"
	"fishcam/internal/services"
	"fishcam/internal/services/identity"
	"fishcam/internal/services/localdata"

	"github.com/gorilla/mux"
)

// SetupRoutes registers the API, the viewer feed and the log endpoints.
func SetupRoutes(manager *services.Manager, store *localdata.Store, gateway *identity.Gateway, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthHandler).Methods(http.MethodGet)

	// API endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/identity", handlers.IdentityHandler(gateway, logger)).Methods(http.MethodGet)
	api.HandleFunc("/detections/stored", handlers.StoredDetectionsHandler(store)).Methods(http.MethodGet)
	api.HandleFunc("/stats", handlers.StatsHandler(manager.Stats)).Methods(http.MethodGet)
	api.HandleFunc("/overlay", handlers.OverlayWebsocketHandler(manager.Hub(), logger)).Methods(http.MethodGet)

	// Endpointy wymagające tokenu urządzenia
	protected := api.PathPrefix("/detections").Subrouter()
	protected.Use(middleware.BearerAuth(gateway, logger))
	protected.HandleFunc("/latest", handlers.LatestDetectionHandler(manager)).Methods(http.MethodGet)
	protected.HandleFunc("/latest/overlay.png", handlers.OverlayImageHandler(manager, logger)).Methods(http.MethodGet)

	// Log endpoints
	router.HandleFunc("/logs/{level:info|warning|error}", handlers.ShowLogsHandler(logger)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level:info|warning|error}/clear", handlers.ClearLogsHandler(logger)).Methods(http.MethodPost)

	return router
}
