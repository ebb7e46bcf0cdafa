package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"screenflow/internal/config"
	"screenflow/internal/logger"
	"screenflow/internal/metrics"
	"screenflow/internal/service"
	"screenflow/internal/transport/rest/handler"
	"screenflow/internal/transport/rest/middleware"
	"screenflow/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	ResponseSetService *service.ResponseSetService
	AutosaveService    *service.AutosaveService
	WSHub              *ws.Hub
	CORS               config.CORSConfig
	Log                *logger.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	responseSetHandler := handler.NewResponseSetHandler(c.ResponseSetService, c.Log)
	answerHandler := handler.NewAnswerHandler(c.AutosaveService, c.Log)
	wsHandler := ws.NewHandler(c.WSHub, c.ResponseSetService, c.Log)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORS))
	r.Use(middleware.NewRequestLogger(c.Log).Handler)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/response-sets", responseSetHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/response-sets/{rsId}", responseSetHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/response-sets/{rsId}", responseSetHandler.Delete).Methods("DELETE", "OPTIONS")

	v1.HandleFunc("/response-sets/{rsId}/screens/{screenKey}", answerHandler.GetScreen).Methods("GET", "OPTIONS")
	v1.HandleFunc("/response-sets/{rsId}/answers:batch", answerHandler.Batch).Methods("POST", "OPTIONS")
	v1.HandleFunc("/response-sets/{rsId}/answers/{questionId}", answerHandler.Patch).Methods("PATCH", "OPTIONS")
	v1.HandleFunc("/response-sets/{rsId}/answers/{questionId}", answerHandler.Delete).Methods("DELETE", "OPTIONS")

	// WebSocket routes
	v1.HandleFunc("/ws/response-sets/{rsId}", wsHandler.Subscribe).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}

func corsMiddleware(cfg config.CORSConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", cfg.AllowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", cfg.AllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", cfg.AllowedHeaders)
			w.Header().Set("Access-Control-Expose-Headers", cfg.ExposedHeaders)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
