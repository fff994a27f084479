// Package httpapi is the thin REST binding spec.md §6 describes: exactly
// four endpoints, each decoding/encoding JSON and delegating straight to
// the submission façade, pending registry, or cache store. No additional
// endpoints, no additional business logic.
package httpapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/genomeannotate/varbatch/internal/cache"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/submission"
)

// Server bundles the collaborators the handlers need.
type Server struct {
	Facade   *submission.Facade
	Registry *registry.Registry
	Store    *cache.Store
}

// NewHandler builds the httprouter.Router exposing POST /submit,
// GET /poll/:variant_key, GET /health, and GET /statistics.
func NewHandler(s *Server) http.Handler {
	router := httprouter.New()
	router.POST(`/submit`, s.handleSubmit)
	router.GET(`/poll/:variant_key`, s.handlePoll)
	router.GET(`/health`, s.handleHealth)
	router.GET(`/statistics`, s.handleStatistics)
	return router
}
