package tasks

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the task resource and the health check.
func NewRouter(store Store, logger *slog.Logger) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", HealthHandler(store, logger)).Methods(http.MethodGet)

	router.HandleFunc("/tasks", ListTasksHandler(store, logger)).Methods(http.MethodGet)
	router.HandleFunc("/tasks", CreateTaskHandler(store, logger)).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{id:[0-9]+}", GetTaskHandler(store, logger)).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id:[0-9]+}", UpdateTaskHandler(store, logger)).Methods(http.MethodPut)
	router.HandleFunc("/tasks/{id:[0-9]+}", DeleteTaskHandler(store, logger)).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(routeNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	return router
}
