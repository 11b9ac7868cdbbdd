package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/metrics"
	"github.com/woozymasta/sampquery/internal/models"
	"github.com/woozymasta/sampquery/pkg/samp"
)

// jobTimeout bounds the first query of a registered server.
const jobTimeout = 10 * time.Second

// registerResponse is the body returned by POST /api/servers.
type registerResponse struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
}

// handleRegister accepts a server registration. The host defaults to the
// caller's address, so a game server can announce itself with an empty body.
// Accepted registrations are queried asynchronously by the workers.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ip := GetRealIP(r, s.trustProxy)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req models.RegisterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Debug().Err(err).Str("ip", ip).Msg("Invalid registration body")
			metrics.RecordRegistration(metrics.RegistrationInvalid)
			writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
			return
		}
	}

	if req.Host == "" {
		req.Host = ip
		if req.Host == "::1" {
			req.Host = "127.0.0.1"
		}
	}

	node, err := s.tracker.Resolve(r.Context(), req)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Str("host", req.Host).Msg("Registration rejected")
		metrics.RecordRegistration(metrics.RegistrationInvalid)
		writeError(w, queryStatus(err), samp.Kind(err), err.Error())
		return
	}

	resp := registerResponse{Type: node.Type, IP: node.IP, Port: node.Port}
	logCtx := log.With().
		Str("source", ip).
		Str("type", node.Type).
		Str("ip", node.IP).
		Int("port", node.Port).
		Logger()

	if s.seen(node) {
		logCtx.Trace().Msg("Dropped by soft limit hit")
		metrics.RecordRegistration(metrics.RegistrationSkipped)
		resp.Status = metrics.RegistrationSkipped
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	if !s.Enqueue(node, ip) {
		// Forget the node so a retry is not swallowed by the soft limit
		s.seenCache.Delete(seenKey(node))
		logCtx.Warn().Msg("Queue full, registration dropped")
		metrics.RecordRegistration(metrics.RegistrationDropped)
		resp.Status = metrics.RegistrationDropped
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	logCtx.Trace().Msg("Registration queued")
	metrics.RecordRegistration(metrics.RegistrationQueued)
	resp.Status = metrics.RegistrationQueued
	writeJSON(w, http.StatusAccepted, resp)
}

// worker is a background goroutine that processes jobs from the registration queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for job := range s.queue {
		s.processJob(job)
	}
}

// processJob queries a registered server, resolves its country, and upserts it.
// Servers that do not answer are stored without server information so that
// maintenance can prune them later.
func (s *Server) processJob(job registerJob) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	node := job.Node
	logCtx := log.With().
		Str("source", job.Source).
		Str("type", node.Type).
		Str("ip", node.IP).
		Int("port", node.Port).
		Logger()

	if err := s.tracker.Refresh(ctx, &node); err != nil {
		logCtx.Debug().Err(err).Str("kind", samp.Kind(err)).Msg("Registered server did not answer")
	}

	if s.geoip != nil {
		node.CountryCode = s.geoip.CountryCode(node.IP)
	}

	if err := s.storage.UpsertNode(node); err != nil {
		logCtx.Error().Err(err).Msg("Failed to save node")
		return
	}

	logCtx.Debug().
		Str("hostname", node.Hostname).
		Int("players", node.Players).
		Msg("Node saved")
}
