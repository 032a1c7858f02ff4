// Package httpapi is the thin HTTP adapter the core consumes for replica
// and admin traffic (§6 "Minimal HTTP surface"). It is intentionally
// out-of-core-scope: PathDB, the executor, and certs never import
// net/http themselves, only this package binds them to the wire.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/certs"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/executor"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/planner"
	"github.com/axiograph/axiograph/internal/preparedcache"
	"github.com/axiograph/axiograph/internal/snapshotstore"
)

// Role distinguishes a master server (accepts writes) from a replica
// (read-only, syncs from a master).
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "replica"
)

// Server binds a live PathDB plus the snapshot store behind the wire
// contract in §6. Callers own the read/write lock discipline; Server
// just holds the current snapshot behind db and its key behind
// snapshotKey, both guarded by mu.
type Server struct {
	Role       Role
	Store      *snapshotstore.Store
	AdminToken string

	mu            sync.RWMutex
	db            *pathdb.DB
	env           *checkeddb.TypingEnv
	snapshotKey   string
	canonicalText string
	cache         *preparedcache.Cache

	log *slog.Logger
}

// New wraps db (already validated into env) as the server's live
// snapshot, keyed by snapshotKey (typically a PathDB-build id) and
// anchored to canonicalText for certificate issuance.
func New(role Role, store *snapshotstore.Store, adminToken string, db *pathdb.DB, env *checkeddb.TypingEnv, snapshotKey, canonicalText string) (*Server, error) {
	cache, err := preparedcache.New(preparedcache.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	return &Server{
		Role:          role,
		Store:         store,
		AdminToken:    adminToken,
		db:            db,
		env:           env,
		snapshotKey:   snapshotKey,
		canonicalText: canonicalText,
		cache:         cache,
		log:           slog.Default(),
	}, nil
}

// Handler builds the full route table (§6).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /snapshots", s.handleSnapshots)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /cert/reachability", s.handleReachabilityCert)
	mux.HandleFunc("POST /admin/reload", s.requireAdmin(s.handleAdminReload))
	mux.HandleFunc("POST /admin/accept/promote", s.requireAdmin(s.handleAdminPromote))
	mux.HandleFunc("POST /admin/accept/pathdb-commit", s.requireAdmin(s.handleAdminCommit))
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the /status payload (§6 "role, snapshot key, counts").
type StatusResponse struct {
	Role          string `json:"role"`
	SnapshotKey   string `json:"snapshot_key"`
	EntityCount   int    `json:"entity_count"`
	RelationCount int    `json:"relation_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, StatusResponse{
		Role:          string(s.Role),
		SnapshotKey:   s.snapshotKey,
		EntityCount:   s.db.Entities.Len(),
		RelationCount: s.db.Relations.Len(),
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	layer := r.URL.Query().Get("layer")
	if layer == "" {
		layer = "accepted"
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var events any
	var err error
	switch layer {
	case "accepted":
		events, err = s.Store.ListAccepted(limit)
	case "pathdb":
		events, err = s.Store.ListPathDB(limit)
	default:
		writeError(w, http.StatusBadRequest, "layer must be accepted or pathdb")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// QueryRequest is the POST /query body (§6).
type QueryRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Certify bool   `json:"certify"`
	Verify  bool   `json:"verify"`
}

// QueryResponse carries the raw result and, if requested, a certificate
// envelope.
type QueryResponse struct {
	Rows        []certs.RowJSON `json:"rows"`
	Truncated   bool            `json:"truncated"`
	Certificate *certs.Envelope `json:"certificate,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.RLock()
	db, env, snapshotKey, canonicalText, cache := s.db, s.env, s.snapshotKey, s.canonicalText, s.cache
	s.mu.RUnlock()

	q, err := axql.Parse(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse: "+err.Error())
		return
	}

	entry, hit := cache.Get(snapshotKey, q)
	if !hit {
		el, err := elaborate.Elaborate(q, env.Index)
		if err != nil {
			writeError(w, http.StatusBadRequest, "elaborate: "+err.Error())
			return
		}
		plan, err := planner.Build(db, env.Index, el)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "plan: "+err.Error())
			return
		}
		entry = &preparedcache.Entry{Elaborated: el, Plan: plan}
		cache.Put(snapshotKey, q, entry)
	}

	res, err := executor.Run(db, entry.Plan, entry.Elaborated.Query, req.Limit, r.Context().Done())
	if err != nil {
		if errors.Is(err, executor.Cancelled{}) {
			writeError(w, http.StatusRequestTimeout, "cancelled")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := QueryResponse{Truncated: res.Truncated}
	for _, row := range res.Rows {
		resp.Rows = append(resp.Rows, certs.ToRowJSON(row))
	}
	if req.Certify {
		cert, err := certs.QueryResultV3Cert(canonicalText, res, entry.Elaborated)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "certify: "+err.Error())
			return
		}
		resp.Certificate = cert
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReachabilityRequest is the POST /cert/reachability body (§6).
type ReachabilityRequest struct {
	Start       uint32   `json:"start"`
	RelationIDs []string `json:"relation_ids"`
	Verify      bool     `json:"verify"`
}

func (s *Server) handleReachabilityCert(w http.ResponseWriter, r *http.Request) {
	var req ReachabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.RelationIDs) == 0 {
		writeError(w, http.StatusBadRequest, "relation_ids must be non-empty")
		return
	}

	s.mu.RLock()
	db, snapshotKey := s.db, s.snapshotKey
	s.mu.RUnlock()

	path := &axql.PathExpr{Kind: axql.PathRel, Rel: req.RelationIDs[0]}
	for _, rel := range req.RelationIDs[1:] {
		path = &axql.PathExpr{
			Kind:     axql.PathConcat,
			Children: []*axql.PathExpr{path, {Kind: axql.PathRel, Rel: rel}},
		}
	}
	dfa := planner.CompileRPQ(path)
	reached := dfa.Reachable(db, entitystore.ID(req.Start), 0, -1, nil)
	witnesses := reached.ToSlice()

	cert, err := certs.ReachabilityCert(snapshotKey, req.Start, dfa, witnesses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (s *Server) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	head, err := s.Store.WALHead()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	db, err := s.Store.Build(head, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	canonicalText, err := s.Store.CanonicalText(head)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	env, err := checkeddb.NewTypingEnv(db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cache, err := preparedcache.New(preparedcache.DefaultCapacity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	s.db, s.env, s.snapshotKey, s.canonicalText, s.cache = db, env, head, canonicalText, cache
	s.mu.Unlock()

	s.log.Info("reloaded snapshot", "snapshot_key", head, "entity_count", db.Entities.Len())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// PromoteRequest is the POST /admin/accept/promote body.
type PromoteRequest struct {
	CanonicalText string `json:"canonical_text"`
}

func (s *Server) handleAdminPromote(w http.ResponseWriter, r *http.Request) {
	if s.Role != RoleMaster {
		writeError(w, http.StatusForbidden, "promote is master-only")
		return
	}
	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := s.Store.Promote(req.CanonicalText)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": id})
}

// CommitRequest is the POST /admin/accept/pathdb-commit body.
type CommitRequest struct {
	AcceptedSnapshotID string                    `json:"accepted_snapshot_id"`
	Ops                []snapshotstore.OverlayOp `json:"ops"`
	Message            string                    `json:"message"`
}

func (s *Server) handleAdminCommit(w http.ResponseWriter, r *http.Request) {
	if s.Role != RoleMaster {
		writeError(w, http.StatusForbidden, "pathdb-commit is master-only")
		return
	}
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, _, err := s.Store.Commit(req.AcceptedSnapshotID, req.Ops, req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pathdb_snapshot_id": id})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminToken == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled: no token configured")
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.AdminToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
