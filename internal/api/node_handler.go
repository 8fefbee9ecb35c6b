package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tributarydb/tributary/internal/core/node"
	"github.com/tributarydb/tributary/internal/logging"
)

// reservedNodeParams are the query parameters with positional meaning; every
// other parameter is treated as a field filter (name__value=...).
var reservedNodeParams = map[string]bool{
	"kind":    true,
	"branch":  true,
	"at":      true,
	"rebase":  true,
	"offset":  true,
	"limit":   true,
	"include": true,
	"fields":  true,
}

// NodeHandler handles /api/v1/nodes requests.
type NodeHandler struct {
	service *Service
	logger  *logging.Logger
}

// NewNodeHandler creates a new node handler.
func NewNodeHandler(service *Service, logger *logging.Logger) *NodeHandler {
	return &NodeHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCollection handles the node collection: query and create.
func (nh *NodeHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		nh.query(w, r)
	case http.MethodPost:
		nh.create(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Allowed: GET, POST")
	}
}

// HandleResource handles one node and its relationships subresource.
func (nh *NodeHandler) HandleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/nodes/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Node id required")
		return
	}

	id, sub := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		id, sub = rest[:i], rest[i+1:]
	}

	if sub == "relationships" {
		switch r.Method {
		case http.MethodPost:
			nh.relationshipAdd(w, r, id)
		case http.MethodDelete:
			nh.relationshipRemove(w, r, id)
		default:
			WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Allowed: POST, DELETE")
		}
		return
	}
	if sub != "" {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown node subresource: "+sub)
		return
	}

	switch r.Method {
	case http.MethodGet:
		nh.get(w, r, id)
	case http.MethodPatch:
		nh.update(w, r, id)
	case http.MethodDelete:
		nh.delete(w, r, id)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Allowed: GET, PATCH, DELETE")
	}
}

func (nh *NodeHandler) query(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	at, err := ParseOptionalTimestamp(params.Get("at"), "at")
	if err != nil {
		WriteErr(w, err)
		return
	}

	opts := node.QueryOptions{
		Kind:    params.Get("kind"),
		Filters: filtersFromParams(params),
		Fields:  splitCSV(params.Get("fields")),
	}
	if opts.IncludeSource, opts.IncludeOwner, err = includeFlags(params.Get("include")); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if v := params.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "offset must be an integer")
			return
		}
	}
	if v := params.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer")
			return
		}
	}

	nodes, err := nh.service.NodeQuery(r.Context(), params.Get("branch"), at, params.Get("rebase") == "true", opts)
	if err != nil {
		WriteErr(w, err)
		return
	}

	payload := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		payload = append(payload, n.ToMap())
	}
	_ = WriteSuccess(w, map[string]interface{}{
		"nodes": payload,
		"count": len(payload),
	})
}

func (nh *NodeHandler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   string                 `json:"kind"`
		Branch string                 `json:"branch"`
		Data   map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if req.Kind == "" {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "kind is required")
		return
	}

	created, err := nh.service.NodeCreate(r.Context(), req.Branch, req.Kind, req.Data)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteCreated(w, created.ToMap())
}

func (nh *NodeHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	params := r.URL.Query()

	at, err := ParseOptionalTimestamp(params.Get("at"), "at")
	if err != nil {
		WriteErr(w, err)
		return
	}

	source, owner, err := includeFlags(params.Get("include"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	var opts []node.ReadOption
	if source {
		opts = append(opts, node.WithSource())
	}
	if owner {
		opts = append(opts, node.WithOwner())
	}
	if fields := splitCSV(params.Get("fields")); len(fields) > 0 {
		opts = append(opts, node.WithFields(fields...))
	}

	n, err := nh.service.NodeGet(r.Context(), params.Get("branch"), at, params.Get("rebase") == "true", id, opts...)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, n.ToMap())
}

func (nh *NodeHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Branch string                 `json:"branch"`
		Data   map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if len(req.Data) == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "data is required")
		return
	}

	updated, err := nh.service.NodeUpdate(r.Context(), req.Branch, id, req.Data)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, updated.ToMap())
}

func (nh *NodeHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := nh.service.NodeDelete(r.Context(), r.URL.Query().Get("branch"), id); err != nil {
		WriteErr(w, err)
		return
	}
	WriteNoContent(w)
}

func (nh *NodeHandler) relationshipAdd(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Branch string      `json:"branch"`
		Name   string      `json:"name"`
		Peer   interface{} `json:"peer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Peer == nil {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "name and peer are required")
		return
	}

	updated, err := nh.service.RelationshipAdd(r.Context(), req.Branch, id, req.Name, req.Peer)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, updated.ToMap())
}

func (nh *NodeHandler) relationshipRemove(w http.ResponseWriter, r *http.Request, id string) {
	params := r.URL.Query()
	relName := params.Get("name")
	peerID := params.Get("peer_id")
	if relName == "" || peerID == "" {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "name and peer_id are required")
		return
	}

	updated, err := nh.service.RelationshipRemove(r.Context(), params.Get("branch"), id, relName, peerID)
	if err != nil {
		WriteErr(w, err)
		return
	}
	_ = WriteSuccess(w, updated.ToMap())
}

// includeFlags parses the include parameter, a comma-separated subset of
// {source, owner}.
func includeFlags(raw string) (source, owner bool, err error) {
	for _, token := range splitCSV(raw) {
		switch token {
		case "source":
			source = true
		case "owner":
			owner = true
		default:
			return false, false, fmt.Errorf("unknown include %q, expected source or owner", token)
		}
	}
	return source, owner, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// filtersFromParams turns the non-reserved query parameters into field
// filters. Query strings carry no type information, so boolean and numeric
// literals are coerced; everything else stays a string.
func filtersFromParams(params url.Values) map[string]interface{} {
	filters := map[string]interface{}{}
	for key, values := range params {
		if reservedNodeParams[key] || len(values) == 0 {
			continue
		}
		filters[key] = coerceFilterValue(values[0])
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

func coerceFilterValue(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
