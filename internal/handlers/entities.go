package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mwinata/crm-web-ui/internal/models"
)

// HandleDeleteEntity removes a single record. It answers 404 when either the collection
// segment or the record ID is unknown, and publishes a list refresh on success.
func (m Main) HandleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseEntityKind(r.PathValue("entity"))
	if !ok {
		http.Error(w, "Unknown collection", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")

	if err := m.store.DeleteEntity(r.Context(), kind, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}
		m.logger.Error("Failed to delete record",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.publishRefresh(r.Context(), kind)
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type bulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// HandleBulkDelete removes a batch of records from one collection. IDs that name nothing
// are skipped rather than failing the batch; the response reports how many records were
// actually removed. One refresh is published for the whole batch.
func (m Main) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseEntityKind(r.PathValue("entity"))
	if !ok {
		http.Error(w, "Unknown collection", http.StatusNotFound)
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "No ids given", http.StatusBadRequest)
		return
	}

	deleted := 0
	for _, id := range req.IDs {
		err := m.store.DeleteEntity(r.Context(), kind, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			m.logger.Error("Failed to delete record",
				slog.String("kind", string(kind)),
				slog.String("id", id),
				slog.String(errLoggerKey, err.Error()))
			// Rows before the failure are gone; open pages still need the refresh.
			if deleted > 0 {
				m.publishRefresh(r.Context(), kind)
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		deleted++
	}

	if deleted > 0 {
		m.publishRefresh(r.Context(), kind)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(bulkDeleteResponse{Deleted: deleted}); err != nil {
		m.logger.Error("Failed to encode response", slog.String(errLoggerKey, err.Error()))
	}
}

type updateTaskRequest struct {
	Done bool `json:"done"`
}

// HandleUpdateTask sets a task's done flag and publishes a task list refresh.
func (m Main) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := m.store.Task(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		m.logger.Error("Failed to get task",
			slog.String("id", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	task.Done = req.Done
	if err := m.store.UpdateTask(r.Context(), task); err != nil {
		m.logger.Error("Failed to update task",
			slog.String("id", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.publishRefresh(r.Context(), models.KindTask)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(task); err != nil {
		m.logger.Error("Failed to encode response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleIcon serves a cached SVG icon body.
func (m Main) HandleIcon(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := m.icons.Icon(r.Context(), name)
	if err != nil {
		m.logger.Error("Failed to get icon",
			slog.String("icon", name),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(body); err != nil {
		m.logger.Error("Failed to write icon body", slog.String(errLoggerKey, err.Error()))
	}
}
