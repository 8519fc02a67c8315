package api

import (
	"net/http"

	"github.com/seantiz/vncmcp/internal/managed"
)

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	ec := s.ec.Load()
	if ec == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no active run")
		return
	}
	s.writeJSON(w, http.StatusOK, ec.Status())
}

// setExecutionContext points /v1/runtime at ec.
func (s *Server) setExecutionContext(ec *managed.ExecutionContext) {
	s.ec.Store(ec)
}
