package design

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	myMiddleware "go-canvas/internal/middleware"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "Untitled design"
	}

	d, err := h.repo.CreateDesign(r.Context(), req.Name, userID, req.CanvasWidth, req.CanvasHeight)
	if err != nil {
		log.Printf("design: create: %v", err)
		http.Error(w, "Could not create design", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	designs, err := h.repo.ListDesigns(r.Context(), userID)
	if err != nil {
		log.Printf("design: list: %v", err)
		http.Error(w, "Could not list designs", http.StatusInternalServerError)
		return
	}
	if designs == nil {
		designs = []*Design{}
	}
	writeJSON(w, http.StatusOK, designs)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDesign(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("design: get: %v", err)
		http.Error(w, "Could not load design", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	err := h.repo.DeleteDesign(r.Context(), chi.URLParam(r, "id"), userID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("design: delete: %v", err)
		http.Error(w, "Could not delete design", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync is the snapshot-sync endpoint consulted on first load, on reconnect,
// and periodically. It never pushes state; clients pull and reconcile.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.GetDesign(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Design not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("design: sync: %v", err)
		http.Error(w, "Could not load design", http.StatusInternalServerError)
		return
	}

	var clientVersion *int64
	if raw := r.URL.Query().Get("clientVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid clientVersion", http.StatusBadRequest)
			return
		}
		clientVersion = &v
	}

	writeJSON(w, http.StatusOK, BuildSyncResponse(d, clientVersion, time.Now()))
}

// Save persists the full element array. A version conflict is answered with
// 409 plus the server digest so the caller can reconcile; the client never
// rolls back local state because of a failed save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.repo.SaveDesign(r.Context(), id, &req)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Design not found", http.StatusNotFound)
	case errors.Is(err, ErrVersionConflict):
		d, getErr := h.repo.GetDesign(r.Context(), id)
		if getErr != nil {
			http.Error(w, "Version conflict", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":           "version_conflict",
			"serverVersion":   d.Version,
			"elementVersions": Digest(d.Elements),
		})
	case err != nil:
		log.Printf("design: save: %v", err)
		http.Error(w, "Could not save design", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.repo.AddComment(r.Context(), chi.URLParam(r, "id"), userID, req.Body)
	if err != nil {
		log.Printf("design: add comment: %v", err)
		http.Error(w, "Could not add comment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.repo.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("design: list comments: %v", err)
		http.Error(w, "Could not list comments", http.StatusInternalServerError)
		return
	}
	if comments == nil {
		comments = []*Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	commentID, err := strconv.Atoi(chi.URLParam(r, "commentId"))
	if err != nil {
		http.Error(w, "Invalid comment id", http.StatusBadRequest)
		return
	}

	err = h.repo.DeleteComment(r.Context(), commentID, userID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Comment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("design: delete comment: %v", err)
		http.Error(w, "Could not delete comment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
