package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chinmayajena/sundaygraph/pkg/services"
)

// OntologyHandler exposes ontology and version management endpoints.
type OntologyHandler struct {
	versions services.VersionService
	logger   *zap.Logger
}

// NewOntologyHandler creates a new OntologyHandler.
func NewOntologyHandler(versions services.VersionService, logger *zap.Logger) *OntologyHandler {
	return &OntologyHandler{versions: versions, logger: logger}
}

// RegisterRoutes registers ontology routes on the given mux.
func (h *OntologyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies", h.CreateOntology)
	mux.HandleFunc("GET /api/workspaces/{workspace}/ontologies", h.ListOntologies)
	mux.HandleFunc("DELETE /api/workspaces/{workspace}/ontologies/{ontology}", h.DeleteOntology)

	mux.HandleFunc("POST /api/workspaces/{workspace}/ontologies/{ontology}/versions", h.CreateVersion)
	mux.HandleFunc("GET /api/workspaces/{workspace}/ontologies/{ontology}/versions", h.ListVersions)
	mux.HandleFunc("GET /api/workspaces/{workspace}/ontologies/{ontology}/versions/latest", h.GetLatest)
	mux.HandleFunc("GET /api/workspaces/{workspace}/ontologies/{ontology}/versions/{version}", h.GetVersion)
	mux.HandleFunc("GET /api/workspaces/{workspace}/ontologies/{ontology}/diff", h.Diff)
}

type createOntologyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (h *OntologyHandler) CreateOntology(w http.ResponseWriter, r *http.Request) {
	var req createOntologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "body must contain a non-empty name")
		return
	}

	onto, err := h.versions.CreateOntology(r.Context(), r.PathValue("workspace"), req.Name, req.Description)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, onto)
}

func (h *OntologyHandler) ListOntologies(w http.ResponseWriter, r *http.Request) {
	ontologies, err := h.versions.ListOntologies(r.Context(), r.PathValue("workspace"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, ontologies)
}

func (h *OntologyHandler) DeleteOntology(w http.ResponseWriter, r *http.Request) {
	err := h.versions.DeleteOntology(r.Context(), r.PathValue("workspace"), r.PathValue("ontology"))
	if err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OntologyHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read ODL payload")
		return
	}

	version, err := h.versions.CreateVersion(r.Context(),
		r.PathValue("workspace"), r.PathValue("ontology"),
		payload, r.Header.Get("X-Author"), r.URL.Query().Get("notes"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, version)
}

func (h *OntologyHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.ListVersions(r.Context(), r.PathValue("workspace"), r.PathValue("ontology"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, versions)
}

func (h *OntologyHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	version, err := h.versions.GetLatest(r.Context(), r.PathValue("workspace"), r.PathValue("ontology"))
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, version)
}

func (h *OntologyHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	versionNumber, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "version must be an integer")
		return
	}

	version, err := h.versions.GetVersion(r.Context(), r.PathValue("workspace"), r.PathValue("ontology"), versionNumber)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, version)
}

func (h *OntologyHandler) Diff(w http.ResponseWriter, r *http.Request) {
	oldVersion, err1 := strconv.Atoi(r.URL.Query().Get("old"))
	newVersion, err2 := strconv.Atoi(r.URL.Query().Get("new"))
	if err1 != nil || err2 != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "BAD_REQUEST", "old and new query params must be integers")
		return
	}

	result, err := h.versions.Diff(r.Context(), r.PathValue("workspace"), r.PathValue("ontology"), oldVersion, newVersion)
	if err != nil {
		WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, result)
}
