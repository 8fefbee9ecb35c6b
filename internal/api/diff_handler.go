package api

import (
	"net/http"
	"strconv"

	"github.com/tributarydb/tributary/internal/logging"
)

// DiffHandler handles /api/v1/diff/data requests.
type DiffHandler struct {
	service *Service
	logger  *logging.Logger
}

// NewDiffHandler creates a new diff handler.
func NewDiffHandler(service *Service, logger *logging.Logger) *DiffHandler {
	return &DiffHandler{
		service: service,
		logger:  logger,
	}
}

// Handle renders the branch diff payload. branch_only defaults to true;
// with false the parent's in-window changes are included too.
func (dh *DiffHandler) Handle(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	from, err := ParseOptionalTimestamp(params.Get("time_from"), "time_from")
	if err != nil {
		WriteErr(w, err)
		return
	}
	to, err := ParseOptionalTimestamp(params.Get("time_to"), "time_to")
	if err != nil {
		WriteErr(w, err)
		return
	}

	branchOnly := true
	if v := params.Get("branch_only"); v != "" {
		branchOnly, err = strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "branch_only must be a boolean")
			return
		}
	}

	payload, err := dh.service.DiffSummary(r.Context(), params.Get("branch"), from, to, branchOnly)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, payload)
}
