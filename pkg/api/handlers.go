package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/claphost/pkg/async"
	"github.com/platinummonkey/claphost/pkg/httputil"
	"github.com/platinummonkey/claphost/pkg/index"
	"github.com/platinummonkey/claphost/pkg/storage"
)

// Reindexer runs an index pass over the given search roots.
type Reindexer interface {
	Sync(ctx context.Context, roots ...string) (*index.Result, error)
}

// Server serves the plugin index
type Server struct {
	store   storage.LibraryReader
	indexer Reindexer
	roots   func() []string
	logger  logrus.FieldLogger
	tasks   *async.Group
	running atomic.Bool
	// done, when set, is signalled after a background rescan.
	done chan struct{}
}

// NewServer creates a new API server. indexer may be nil, in which case
// POST /api/v1/index answers 503. Background rescans run on tasks; a nil
// group gets a private one.
func NewServer(store storage.LibraryReader, indexer Reindexer, roots func() []string, tasks *async.Group, logger logrus.FieldLogger) *Server {
	if roots == nil {
		roots = func() []string { return nil }
	}
	if tasks == nil {
		tasks = async.NewGroup(context.Background(), logger)
	}
	return &Server{
		store:   store,
		indexer: indexer,
		roots:   roots,
		logger:  logger,
		tasks:   tasks,
	}
}

// RegisterRoutes registers the /api/v1 routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/libraries", s.listLibraries).Methods(http.MethodGet)
	v1.HandleFunc("/libraries/metadata", s.getLibrary).Methods(http.MethodGet)
	v1.HandleFunc("/plugins/{id}", s.findPlugin).Methods(http.MethodGet)
	v1.HandleFunc("/index", s.reindex).Methods(http.MethodPost)
}

// LibraryList is the body of the list endpoints.
type LibraryList struct {
	Libraries []*storage.LibraryRecord `json:"libraries"`
	Count     int                      `json:"count"`
}

// listLibraries handles GET /api/v1/libraries
func (s *Server) listLibraries(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if records == nil {
		records = []*storage.LibraryRecord{}
	}
	httputil.WriteSuccess(w, LibraryList{Libraries: records, Count: len(records)})
}

// getLibrary handles GET /api/v1/libraries/metadata?path=...
func (s *Server) getLibrary(w http.ResponseWriter, r *http.Request) {
	path, ok := httputil.RequireQueryOrError(w, r, "path")
	if !ok {
		return
	}
	record, err := s.store.Get(r.Context(), path)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	} else if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// findPlugin handles GET /api/v1/plugins/{id}
func (s *Server) findPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	records, err := s.store.FindPlugin(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if len(records) == 0 {
		httputil.WriteNotFoundError(w, "no library provides plugin "+id)
		return
	}
	httputil.WriteSuccess(w, LibraryList{Libraries: records, Count: len(records)})
}

// reindex handles POST /api/v1/index. By default the rescan runs in the
// background and the reply is 202; with ?wait=true the reply carries the
// run's result.
func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		httputil.WriteServiceUnavailable(w, "indexing is not enabled")
		return
	}
	wait, err := httputil.ParseQueryBool(r, "wait", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		httputil.WriteConflict(w, "an index run is already in progress")
		return
	}

	roots := s.roots()
	if wait {
		defer s.running.Store(false)
		result, err := s.indexer.Sync(r.Context(), roots...)
		if err != nil {
			s.logger.WithError(err).Warn("Index run reported errors")
			if result == nil {
				httputil.WriteInternalError(w, err)
				return
			}
		}
		httputil.WriteSuccess(w, result)
		return
	}

	started := s.tasks.Go("background index run", 0, func(ctx context.Context) error {
		defer func() {
			s.running.Store(false)
			if s.done != nil {
				s.done <- struct{}{}
			}
		}()
		_, err := s.indexer.Sync(ctx, roots...)
		return err
	})
	if !started {
		s.running.Store(false)
		httputil.WriteServiceUnavailable(w, "server is shutting down")
		return
	}
	httputil.WriteAccepted(w, map[string]string{"status": "accepted"})
}
