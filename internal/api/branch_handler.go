package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tributarydb/tributary/internal/core/merge"
	"github.com/tributarydb/tributary/internal/logging"
)

// BranchHandler handles /api/v1/branches requests.
type BranchHandler struct {
	service *Service
	logger  *logging.Logger
}

// NewBranchHandler creates a new branch handler.
func NewBranchHandler(service *Service, logger *logging.Logger) *BranchHandler {
	return &BranchHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCollection handles the branch collection: list and create.
func (bh *BranchHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bh.list(w, r)
	case http.MethodPost:
		bh.create(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Allowed: GET, POST")
	}
}

// HandleResource handles one branch and its rebase/merge/validate actions.
// Branch names may contain slashes, so the action is recognized by the last
// path segment and everything before it is the name.
func (bh *BranchHandler) HandleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/branches/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Branch name required")
		return
	}

	name, action := rest, ""
	if i := strings.LastIndexByte(rest, '/'); i >= 0 {
		switch last := rest[i+1:]; last {
		case "rebase", "merge", "validate":
			name, action = rest[:i], last
		}
	}

	if action != "" {
		if r.Method != http.MethodPost {
			WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST required")
			return
		}
		switch action {
		case "rebase":
			bh.rebase(w, r, name)
		case "merge":
			bh.merge(w, r, name)
		case "validate":
			bh.validate(w, r, name)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		bh.get(w, r, name)
	case http.MethodPatch:
		bh.update(w, r, name)
	case http.MethodDelete:
		bh.delete(w, r, name)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Allowed: GET, PATCH, DELETE")
	}
}

func (bh *BranchHandler) list(w http.ResponseWriter, r *http.Request) {
	branches := bh.service.BranchList(r.Context())
	_ = WriteSuccess(w, map[string]interface{}{
		"branches": branches,
		"count":    len(branches),
	})
}

func (bh *BranchHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsDataOnly  bool   `json:"is_data_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required")
		return
	}

	b, err := bh.service.BranchCreate(r.Context(), req.Name, req.Description, req.IsDataOnly)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteCreated(w, b)
}

func (bh *BranchHandler) get(w http.ResponseWriter, r *http.Request, name string) {
	b, err := bh.service.BranchGet(r.Context(), name)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, b)
}

func (bh *BranchHandler) update(w http.ResponseWriter, r *http.Request, name string) {
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	b, err := bh.service.BranchUpdate(r.Context(), name, req.Description)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, b)
}

func (bh *BranchHandler) delete(w http.ResponseWriter, r *http.Request, name string) {
	if err := bh.service.BranchDelete(r.Context(), name); err != nil {
		WriteErr(w, err)
		return
	}
	WriteNoContent(w)
}

func (bh *BranchHandler) rebase(w http.ResponseWriter, r *http.Request, name string) {
	b, err := bh.service.BranchRebase(r.Context(), name)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, b)
}

func (bh *BranchHandler) merge(w http.ResponseWriter, r *http.Request, name string) {
	var req struct {
		Resolutions map[string]string `json:"resolutions"`
	}
	// The body is optional: a merge without conflicts needs no resolutions.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	resolutions := make(map[string]merge.Resolution, len(req.Resolutions))
	for path, verb := range req.Resolutions {
		resolutions[path] = merge.Resolution(verb)
	}

	report, err := bh.service.BranchMerge(r.Context(), name, resolutions)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, report)
}

func (bh *BranchHandler) validate(w http.ResponseWriter, r *http.Request, name string) {
	validation, err := bh.service.BranchValidate(r.Context(), name)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, validation)
}
