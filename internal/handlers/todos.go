package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/zeebo/blake3"

	"github.com/AnshRaj112/tasklist-backend/internal/middleware"
	"github.com/AnshRaj112/tasklist-backend/internal/models"
	"github.com/AnshRaj112/tasklist-backend/internal/services"
)

const maxBodyBytes = 1 << 20

type AddTaskRequest struct {
	Text string `json:"text"`
}

type OrderModeRequest struct {
	OrderMode string `json:"orderMode"`
	SortMode  string `json:"sortMode"`
}

type OrderModeResponse struct {
	OrderMode models.OrderMode `json:"orderMode"`
	SortMode  string           `json:"sortMode"`
}

type ArchiveResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ArchivedFile string `json:"archivedFile"`
}

func ownerKey(r *http.Request) string {
	sess, _ := middleware.SessionFromContext(r.Context())
	return sess.OwnerKey
}

// ListTasks returns the task array. The order mode travels in headers and
// the body hash is offered as an ETag.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	c, err := h.tasks.Load(ownerKey(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	body, err := json.Marshal(c.Tasks)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	etag := snapshotETag(body, c.OrderMode)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Order-Mode", string(c.OrderMode))
	w.Header().Set("X-Sort-Mode", c.OrderMode.LegacyName())

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func snapshotETag(body []byte, mode models.OrderMode) string {
	h := blake3.New()
	h.Write(body)
	h.Write([]byte{0})
	h.Write([]byte(mode))
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// AddTask creates a task from {text}.
func (h *Handler) AddTask(w http.ResponseWriter, r *http.Request) {
	var req AddTaskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}
	task, err := h.tasks.Add(ownerKey(r), req.Text)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// ReplaceTasks swaps the whole list for the posted array (undo, import).
func (h *Handler) ReplaceTasks(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, services.KindValidation, "not a list")
		return
	}
	var tasks []models.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "not a list of tasks")
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	if err := h.tasks.ReplaceAll(ownerKey(r), tasks); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Todos restored successfully"})
}

// UpdateTask applies the fields of the body that are present and correctly typed.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		writeError(w, http.StatusNotFound, services.KindNotFound, "task not found")
		return
	}
	patch, err := decodePatch(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}
	task, err := h.tasks.Update(ownerKey(r), id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask removes a task and returns it.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		writeError(w, http.StatusNotFound, services.KindNotFound, "task not found")
		return
	}
	task, err := h.tasks.Remove(ownerKey(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// SetOrderMode accepts {orderMode} or the older {sortMode}.
func (h *Handler) SetOrderMode(w http.ResponseWriter, r *http.Request) {
	var req OrderModeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, services.KindValidation, "Invalid request body")
		return
	}
	mode := req.OrderMode
	if mode == "" {
		mode = req.SortMode
	}
	parsed, err := h.tasks.SetOrderMode(ownerKey(r), mode)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OrderModeResponse{OrderMode: parsed, SortMode: parsed.LegacyName()})
}

// Archive moves the caller's task file into the archive.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	name, err := h.tasks.Archive(ownerKey(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{
		Success:      true,
		Message:      "Database archived successfully",
		ArchivedFile: name,
	})
}

// Version reports the running build.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// decodePatch keeps only fields of the expected JSON type, so
// {"done":"yes"} is ignored rather than rejected.
func decodePatch(body io.Reader) (models.TaskPatch, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&fields); err != nil {
		return models.TaskPatch{}, err
	}

	var patch models.TaskPatch
	if raw, ok := fields["text"]; ok && !isNull(raw) {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			patch.Text = &s
		}
	}
	if raw, ok := fields["done"]; ok && !isNull(raw) {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			patch.Done = &b
		}
	}
	if raw, ok := fields["favorite"]; ok && !isNull(raw) {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			patch.Favorite = &b
		}
	}
	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
