// Package server implements the HTTP tracker API, its middleware, and the
// background workers that query registered servers.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/metrics"
	"github.com/woozymasta/sampquery/internal/models"
)

// New creates a Server from its dependencies and configuration. geo may be nil.
func New(store NodeStore, geo CountryResolver, tracker Tracker, live LiveQuerier, cfg *config.Config) *Server {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}

	return &Server{
		storage:        store,
		geoip:          geo,
		tracker:        tracker,
		live:           live,
		authToken:      cfg.Server.AuthToken,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		workers:        workers,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		softLimitDur:   cfg.RateLimit.SoftLimitDur,

		queue:    make(chan registerJob, cfg.Server.QueueSize),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the registration workers and the soft-limit cache cleanup.
func (s *Server) StartWorkers() {
	for range s.workers {
		s.wg.Add(1)
		go s.worker()
	}

	go s.gcSoftLimitCache()
}

// StopWorkers stops accepting registrations and waits for queued ones to finish.
func (s *Server) StopWorkers() {
	s.queueMu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.shutdown)
		close(s.queue)
	}
	s.queueMu.Unlock()

	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/servers", s.RateLimitMiddleware(http.HandlerFunc(s.handleRegister)))
	mux.Handle("GET /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleNodes)))
	mux.Handle("GET /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetNode)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteNode)))
	mux.Handle("GET /api/query", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))
	mux.Handle("GET /metrics", metrics.Handler())

	return s.LoggingMiddleware(mux)
}

// Enqueue queues a node for its first query, bypassing the HTTP limits.
// It reports false when the queue is full or the workers have been stopped.
func (s *Server) Enqueue(node models.Node, source string) bool {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.stopped {
		return false
	}

	select {
	case s.queue <- registerJob{Node: node, Source: source}:
		return true
	default:
		return false
	}
}

// seen reports whether node was queued within the soft limit and marks it as queued otherwise.
func (s *Server) seen(node models.Node) bool {
	key := seenKey(node)
	now := time.Now()

	if v, ok := s.seenCache.Load(key); ok {
		if t, ok := v.(time.Time); ok && now.Sub(t) < s.softLimitDur {
			return true
		}
	}
	s.seenCache.Store(key, now)

	return false
}

// seenKey hashes the node identity for the soft-limit cache.
func seenKey(node models.Node) uint64 {
	return xxhash.Sum64String(node.Type + "|" + node.IP + "|" + strconv.Itoa(node.Port))
}

// gcSoftLimitCache periodically cleans up expired entries from the soft rate-limit cache.
func (s *Server) gcSoftLimitCache() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.pruneSeen(time.Now())
		}
	}
}

func (s *Server) pruneSeen(now time.Time) {
	s.seenCache.Range(func(key, value any) bool {
		if t, ok := value.(time.Time); !ok || now.Sub(t) > s.softLimitDur {
			s.seenCache.Delete(key)
		}
		return true
	})
}
