// Package api serves the JSON surface: blueprint exchange documents,
// persisted structures, metrics and the admin reload endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"blockforge.app/internal/forge"
	"blockforge.app/internal/protocol"
	"blockforge.app/internal/transport/ws"
)

type Server struct {
	svc  *forge.Service
	feed *ws.Server
	log  *log.Logger
}

func NewServer(svc *forge.Service, feed *ws.Server, logger *log.Logger) *Server {
	return &Server{svc: svc, feed: feed, log: logger}
}

// Register installs every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/blueprints", s.handleBlueprints)
	mux.HandleFunc("/v1/blueprints/", s.handleBlueprintByID)
	mux.HandleFunc("/v1/structures", s.handleStructures)
	mux.HandleFunc("/v1/reload", s.handleReload)
	if s.feed != nil {
		mux.HandleFunc("/v1/ws", s.feed.Handler())
	}
}

func (s *Server) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(200)
	_, _ = rw.Write([]byte("ok"))
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := s.svc.Stats()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP blockforge_blueprints_cached Blueprints currently cached.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_blueprints_cached gauge\n")
	fmt.Fprintf(rw, "blockforge_blueprints_cached %d\n", m.Blueprints)

	fmt.Fprintf(rw, "# HELP blockforge_sessions_active Active build sessions.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_sessions_active gauge\n")
	fmt.Fprintf(rw, "blockforge_sessions_active %d\n", m.Sessions)

	fmt.Fprintf(rw, "# HELP blockforge_grid_cells_occupied Occupied placement cells.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_grid_cells_occupied gauge\n")
	fmt.Fprintf(rw, "blockforge_grid_cells_occupied %d\n", m.OccupiedCells)

	fmt.Fprintf(rw, "# HELP blockforge_structures_persisted Persisted structure records.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_structures_persisted gauge\n")
	fmt.Fprintf(rw, "blockforge_structures_persisted %d\n", m.Structures)

	fmt.Fprintf(rw, "# HELP blockforge_parse_failures_total Structure files rejected by the parser.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_parse_failures_total counter\n")
	fmt.Fprintf(rw, "blockforge_parse_failures_total %d\n", m.ParseFailures)

	fmt.Fprintf(rw, "# HELP blockforge_mapping_fallbacks_total Block keys resolved via the fallback type.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_mapping_fallbacks_total counter\n")
	fmt.Fprintf(rw, "blockforge_mapping_fallbacks_total %d\n", m.MappingFallbacks)

	fmt.Fprintf(rw, "# HELP blockforge_audit_dropped_total Audit entries dropped on queue saturation.\n")
	fmt.Fprintf(rw, "# TYPE blockforge_audit_dropped_total counter\n")
	fmt.Fprintf(rw, "blockforge_audit_dropped_total %d\n", m.DroppedAudits)

	if s.feed != nil {
		fmt.Fprintf(rw, "# HELP blockforge_ws_clients Connected event-feed clients.\n")
		fmt.Fprintf(rw, "# TYPE blockforge_ws_clients gauge\n")
		fmt.Fprintf(rw, "blockforge_ws_clients %d\n", s.feed.Clients())
	}
}

func (s *Server) handleBlueprints(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "GET only")
		return
	}
	bps := s.svc.Builder().All()
	docs := make([]protocol.BlueprintDoc, 0, len(bps))
	for _, bp := range bps {
		docs = append(docs, protocol.FromBlueprint(bp))
	}
	writeJSON(rw, docs)
}

func (s *Server) handleBlueprintByID(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "GET only")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/blueprints/")
	if id == "" || strings.Contains(id, "/") {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad blueprint id")
		return
	}
	bp, ok := s.svc.Builder().Get(id)
	if !ok {
		writeError(rw, http.StatusNotFound, protocol.ErrNoData, "no data available for blueprint "+id)
		return
	}
	writeJSON(rw, protocol.FromBlueprint(bp))
}

func (s *Server) handleStructures(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "GET only")
		return
	}
	recs, err := s.svc.Structures()
	if err != nil {
		s.log.Printf("structures: %v", err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "load failed")
		return
	}
	docs := make([]protocol.StructureDoc, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, protocol.FromStructure(rec))
	}
	writeJSON(rw, docs)
}

// handleReload rebuilds the blueprint cache from the registered source
// files. Admin-only; accepted from loopback peers.
func (s *Server) handleReload(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrBadRequest, "POST only")
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		writeError(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
		return
	}
	n, err := s.svc.Reload(r.Context())
	if err != nil {
		s.log.Printf("reload: %v", err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "reload failed")
		return
	}
	writeJSON(rw, map[string]int{"blueprints": n})
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(protocol.ErrorDoc{Code: code, Message: msg})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
