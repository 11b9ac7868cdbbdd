package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/models"
	"github.com/woozymasta/sampquery/internal/vars"
	"github.com/woozymasta/sampquery/pkg/samp"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}

// queryStatus maps a query error to the HTTP status returned to the caller.
func queryStatus(err error) int {
	switch {
	case errors.Is(err, samp.ErrValidation), errors.Is(err, samp.ErrResolve):
		return http.StatusBadRequest
	case errors.Is(err, samp.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// nodeKey reads the type, ip and port query parameters identifying a stored node.
// The type defaults to samp.
func nodeKey(r *http.Request) (nodeType, ip string, port int, err error) {
	q := r.URL.Query()

	nodeType = q.Get("type")
	if nodeType == "" {
		nodeType = models.TypeSAMP
	}
	ip = q.Get("ip")
	portStr := q.Get("port")

	if ip == "" || portStr == "" {
		return "", "", 0, errors.New("missing required params (ip, port)")
	}
	if !models.ValidType(nodeType) {
		return "", "", 0, errors.New("unknown node type")
	}

	port, err = strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", "", 0, errors.New("invalid port")
	}

	return nodeType, ip, port, nil
}

// handleNodes returns a JSON list of all tracked server nodes.
func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes, err := s.storage.GetNodes()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch nodes")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if nodes == nil {
		nodes = []models.Node{}
	}

	writeJSON(w, http.StatusOK, nodes)
}

// handleGetNode returns details for a specific node.
// Query params: ?type=samp&ip=1.2.3.4&port=7777
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeType, ip, port, err := nodeKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	node, err := s.storage.GetNode(nodeType, ip, port)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch node")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if node == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// handleDeleteNode removes a specific node from the database.
// Query params: ?type=samp&ip=1.2.3.4&port=7777
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeType, ip, port, err := nodeKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	if err := s.storage.DeleteNode(nodeType, ip, port); err != nil {
		log.Error().Err(err).
			Str("type", nodeType).
			Str("ip", ip).
			Int("port", port).
			Msg("Failed to delete node")

		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("type", nodeType).
		Str("ip", ip).
		Int("port", port).
		Msg("Node deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Node deleted"})
}

// handleQuery performs a live SA-MP query and returns the aggregate response.
// Query params: ?host=example.com&port=7777&timeout=500ms
// The timeout accepts a Go duration or a number of milliseconds.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := samp.Request{Host: q.Get("host")}
	if req.Host == "" {
		writeError(w, http.StatusBadRequest, "validation", "missing host")
		return
	}

	if v := q.Get("port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid port")
			return
		}
		req.Port = port
	}

	if v := q.Get("timeout"); v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid timeout")
			return
		}
		req.Timeout = timeout
	}

	resp, err := s.live.Query(r.Context(), req)
	if err != nil {
		log.Debug().Err(err).Str("host", req.Host).Msg("Live query failed")
		writeError(w, queryStatus(err), samp.Kind(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return 0, errors.New("timeout must be positive")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("timeout must be positive")
	}

	return d, nil
}

// handleVersion reports the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}
