package api

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/docprompt/docprompt/internal/embeddings"
	"github.com/docprompt/docprompt/internal/log"
)

// Training request bounds.
const (
	MaxTrainFiles         = 500
	MaxTrainBodyBytes     = 50 << 20
	MaxTrainFilePathBytes = 1024
)

// TrainHandler indexes files submitted over HTTP.
type TrainHandler struct {
	indexer *embeddings.Indexer
	logger  log.Logger
}

// NewTrainHandler creates a training handler.
func NewTrainHandler(indexer *embeddings.Indexer, logger log.Logger) *TrainHandler {
	return &TrainHandler{indexer: indexer, logger: logger}
}

// RegisterRoutes registers training routes on the given mux.
func (h *TrainHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/train/{project}", h.train)
}

type trainFile struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type trainRequest struct {
	Files []trainFile `json:"files"`
	Force bool        `json:"force"`
}

// Validate checks the request bounds.
func (req trainRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Files, validation.Required, validation.Length(1, MaxTrainFiles)),
	)
}

func (f trainFile) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Path, validation.Required, validation.Length(1, MaxTrainFilePathBytes)),
		validation.Field(&f.Content, validation.Required),
	)
}

type trainResponse struct {
	Errors []embeddings.FileError `json:"errors"`
}

func (h *TrainHandler) train(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("project"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_project", "project id must be a UUID")
		return
	}

	var req trainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTrainBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	files := make([]embeddings.FileData, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, embeddings.FileData{Path: f.Path, Name: f.Name, Content: f.Content})
	}

	errs := h.indexer.IndexFiles(r.Context(), projectID, files, embeddings.IndexOptions{
		Credential: bearerToken(r),
		Force:      req.Force,
	})

	resp := trainResponse{Errors: errs}
	if resp.Errors == nil {
		resp.Errors = []embeddings.FileError{}
	}
	writeJSON(w, http.StatusOK, resp)
}
