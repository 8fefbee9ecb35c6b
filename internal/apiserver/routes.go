package apiserver

import (
	"net/http"

	"github.com/tributarydb/tributary/internal/api"
)

// registerHandlers registers all HTTP handlers.
func (s *Server) registerHandlers() {
	s.registerHTTPHandlers()
	s.registerHealthEndpoints()
}

// registerHTTPHandlers registers the REST API handlers.
func (s *Server) registerHTTPHandlers() {
	branchHandler := api.NewBranchHandler(s.service, s.logger)
	nodeHandler := api.NewNodeHandler(s.service, s.logger)
	diffHandler := api.NewDiffHandler(s.service, s.logger)

	s.router.HandleFunc("/api/v1/branches", branchHandler.HandleCollection)
	s.router.HandleFunc("/api/v1/branches/", branchHandler.HandleResource)
	s.router.HandleFunc("/api/v1/nodes", nodeHandler.HandleCollection)
	s.router.HandleFunc("/api/v1/nodes/", nodeHandler.HandleResource)
	s.router.HandleFunc("/api/v1/diff/data", s.withMethod(http.MethodGet, diffHandler.Handle))
}

// registerHealthEndpoints registers health, readiness, and metrics
// endpoints.
func (s *Server) registerHealthEndpoints() {
	s.router.HandleFunc("/healthz", s.handleHealth)
	s.router.HandleFunc("/readyz", s.handleReady)
	if s.gatherer != nil {
		s.router.Handle("/metrics", s.metricsHandler())
	}
}
