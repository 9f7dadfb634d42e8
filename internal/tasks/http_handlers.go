package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	msgTaskNotFound     = "Tarea no encontrada."
	msgTaskDeleted      = "Tarea eliminada correctamente."
	msgBadPayload       = "Formato de datos no soportado o inválido"
	msgRouteNotFound    = "Endpoint no encontrado."
	msgMethodNotAllowed = "Método no permitido."
	msgInternal         = "Error interno del servidor."
)

const maxPayloadBytes = 1 << 20

// -------------------------------
// HANDLERS
// -------------------------------

func ListTasksHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context(), ListFilterFromQuery(r.URL.Query()))
		if err != nil {
			internalError(w, r, logger, err)
			return
		}

		records := make([]Record, 0, len(list))
		for _, t := range list {
			records = append(records, t.Record())
		}
		respond(w, r, logger, http.StatusOK, records)
	}
}

func GetTaskHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(r)
		if !ok {
			routeNotFound(w, r)
			return
		}

		t, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			respondError(w, r, logger, http.StatusNotFound, msgTaskNotFound)
			return
		}
		if err != nil {
			internalError(w, r, logger, err)
			return
		}

		respond(w, r, logger, http.StatusOK, t.Record())
	}
}

func CreateTaskHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := readPayload(w, r)
		if !ok {
			respondError(w, r, logger, http.StatusBadRequest, msgBadPayload)
			return
		}
		if msg := Validate(rec); msg != "" {
			respondError(w, r, logger, http.StatusBadRequest, msg)
			return
		}

		created, err := store.Create(r.Context(), rec.Task())
		if err != nil {
			internalError(w, r, logger, err)
			return
		}

		logger.Debug("task created", "task_id", created.ID)
		respond(w, r, logger, http.StatusCreated, created.Record())
	}
}

func UpdateTaskHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(r)
		if !ok {
			routeNotFound(w, r)
			return
		}

		rec, ok := readPayload(w, r)
		if !ok {
			respondError(w, r, logger, http.StatusBadRequest, msgBadPayload)
			return
		}
		if msg := Validate(rec); msg != "" {
			respondError(w, r, logger, http.StatusBadRequest, msg)
			return
		}

		updated, err := store.Update(r.Context(), id, rec.Task())
		if errors.Is(err, ErrNotFound) {
			respondError(w, r, logger, http.StatusNotFound, msgTaskNotFound)
			return
		}
		if err != nil {
			internalError(w, r, logger, err)
			return
		}

		logger.Debug("task updated", "task_id", updated.ID)
		respond(w, r, logger, http.StatusOK, updated.Record())
	}
}

func DeleteTaskHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := taskID(r)
		if !ok {
			routeNotFound(w, r)
			return
		}

		if _, err := store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				respondError(w, r, logger, http.StatusNotFound, msgTaskNotFound)
				return
			}
			internalError(w, r, logger, err)
			return
		}

		logger.Debug("task deleted", "task_id", id)
		respond(w, r, logger, http.StatusOK, Record{"message": msgTaskDeleted})
	}
}

func HealthHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}
}

// InternalErrorHandler answers with the fixed 500 envelope. It is also the
// fallback the recovery middleware serves after a panic.
func InternalErrorHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusInternalServerError, msgInternal)
	})
}

// -------------------------------
// helpers
// -------------------------------

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// readPayload decodes the request body with the codec picked from its
// Content-Type. An empty record is as unusable as a malformed one.
func readPayload(w http.ResponseWriter, r *http.Request) (Record, bool) {
	codec, ok := DecoderFor(r.Header.Get("Content-Type"))
	if !ok {
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		return nil, false
	}

	rec, ok := codec.Decode(body)
	if !ok || len(rec) == 0 {
		return nil, false
	}
	return rec, true
}

// respond encodes v with the codec the Accept header asks for.
func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v any) {
	codec := EncoderFor(r.Header.Get("Accept"))

	body, err := codec.Encode(v)
	if err != nil {
		internalError(w, r, logger, err)
		return
	}

	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	w.Write(body)
}

func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, msg string) {
	respond(w, r, logger, status, Record{"error": msg})
}

// internalError logs err and sends the generic 500 envelope; the detail
// never reaches the client.
func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSONError(w, http.StatusInternalServerError, msgInternal)
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, msgRouteNotFound)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// writeJSONError writes the fixed {"error": ...} envelope, always as JSON.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", mediaJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
