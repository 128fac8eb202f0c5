package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/phone"
	"github.com/shaiso/Callflow/internal/repo"
)

// EnqueueTask создаёт task и публикует её в топик режима.
// POST /api/v1/tasks
func (h *Handler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req EnqueueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	raw := domain.StringField(req.Data, "contact_number")
	if raw == "" {
		BadRequest(w, "data.contact_number is required")
		return
	}
	number, err := phone.Normalize(raw, h.region)
	if err != nil {
		InvalidState(w, err.Error())
		return
	}

	mode := domain.ModeForBatch(req.BatchCount)
	if req.Mode != "" {
		if mode, err = domain.ParseMode(strings.ToLower(req.Mode)); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	data := make(map[string]any, len(req.Data))
	for k, v := range req.Data {
		data[k] = v
	}
	data["contact_number"] = number

	task := &domain.Task{
		ID:      req.TaskID,
		RunID:   req.RunID,
		AgentID: req.AgentID,
		Status:  domain.TaskStatusPending,
		Input:   data,
	}
	if HandleRepoError(w, h.logger, h.tasks.Create(r.Context(), task), "") {
		return
	}

	msg := domain.TaskMessage{
		TaskID:       task.ID,
		RunID:        req.RunID,
		AgentID:      req.AgentID,
		Data:         data,
		Instructions: req.Instructions,
		ModelConfig:  req.ModelConfig,
		BatchCount:   req.BatchCount,
	}
	if err := h.queue.Push(r.Context(), mode.Topic(), msg); err != nil {
		h.logger.Error("failed to publish task", "task_id", task.ID, "error", err)
		u := domain.StatusOnly(domain.TaskStatusFailed).WithFailure("queue publish failed: " + err.Error())
		if err := h.tasks.Update(r.Context(), task.ID, u); err != nil {
			h.logger.Error("failed to mark unpublished task", "task_id", task.ID, "error", err)
		}
		Unavailable(w, "queue unavailable")
		return
	}

	h.logger.Info("task enqueued", "task_id", task.ID, "run_id", task.RunID, "mode", mode)
	Created(w, EnqueueTaskResponse{
		TaskID: task.ID,
		RunID:  task.RunID,
		Mode:   mode,
		Topic:  mode.Topic(),
	})
}

// GetTask возвращает task по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}
	Success(w, task)
}

// GetRun возвращает run и его tasks.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	inspector, ok := h.tasks.(repo.Inspector)
	if !ok {
		NotSupported(w, "task store does not support run lookup")
		return
	}

	id := r.PathValue("id")
	run, err := inspector.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}
	tasks, err := inspector.ListByRunID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	Success(w, RunResponse{Run: *run, Tasks: tasks})
}
