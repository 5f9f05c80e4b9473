package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/compiler"
	"github.com/chinmayajena/sundaygraph/pkg/eval"
	"github.com/chinmayajena/sundaygraph/pkg/services"
)

// LifecycleHandler exposes the pipeline stages as async task submissions
// plus task status/cancel endpoints.
type LifecycleHandler struct {
	tasks  *services.TaskService
	logger *zap.Logger
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(tasks *services.TaskService, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{tasks: tasks, logger: logger}
}

// RegisterRoutes registers lifecycle routes on the given mux.
func (h *LifecycleHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/versions/{version}/evaluate", h.Evaluate)
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/versions/{version}/compile", h.Compile)
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/versions/{version}/deploy", h.Deploy)
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/drift", h.DetectDrift)
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/regression", h.RunRegression)

	mux.HandleFunc("GET /api/tasks/{task}", h.TaskStatus)
	mux.HandleFunc("POST /api/tasks/{task}/cancel", h.CancelTask)
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

func versionFromPath(r *http.Request) (int, bool) {
	versionNumber, err := strconv.Atoi(r.PathValue("version"))
	return versionNumber, err == nil
}

func profileFromQuery(r *http.Request) eval.Profile {
	return eval.ParseProfile(r.URL.Query().Get("profile"))
}

func (h *LifecycleHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := versionFromPath(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "version must be an integer")
		return
	}

	taskID, err := h.tasks.SubmitEvaluate(r.PathValue("workspace"), r.PathValue("ontology"), versionNumber, profileFromQuery(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

type compileRequest struct {
	ViewName     string                 `json:"view_name,omitempty"`
	Environments []compiler.Environment `json:"environments,omitempty"`
}

func (h *LifecycleHandler) Compile(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := versionFromPath(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "version must be an integer")
		return
	}

	var req compileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "invalid compile request body")
			return
		}
	}
	if req.ViewName == "" {
		req.ViewName = "semantic_view"
	}

	taskID, err := h.tasks.SubmitCompile(r.PathValue("workspace"), r.PathValue("ontology"),
		versionNumber, profileFromQuery(r), req.ViewName, req.Environments)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (h *LifecycleHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	versionNumber, ok := versionFromPath(r)
	if !ok {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "version must be an integer")
		return
	}

	viewName := r.URL.Query().Get("view_name")
	if viewName == "" {
		viewName = "semantic_view"
	}

	taskID, err := h.tasks.SubmitDeploy(r.PathValue("workspace"), r.PathValue("ontology"),
		versionNumber, profileFromQuery(r), viewName)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (h *LifecycleHandler) DetectDrift(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.tasks.SubmitDriftDetection(r.PathValue("workspace"), r.PathValue("ontology"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (h *LifecycleHandler) RunRegression(w http.ResponseWriter, r *http.Request) {
	questionSet, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || len(questionSet) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "body must contain a question-set document")
		return
	}

	taskID, err := h.tasks.SubmitRegression(r.PathValue("workspace"), r.PathValue("ontology"), questionSet)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (h *LifecycleHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.tasks.Status(r.PathValue("task"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, snapshot)
}

func (h *LifecycleHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Cancel(r.PathValue("task")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
