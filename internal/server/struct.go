package server

import (
	"context"
	"sync"
	"time"

	"github.com/woozymasta/sampquery/internal/models"
	"github.com/woozymasta/sampquery/pkg/samp"
)

// NodeStore is the persistence used by the handlers. *storage.Repository implements it.
type NodeStore interface {
	UpsertNode(n models.Node) error
	GetNodes() ([]models.Node, error)
	GetNode(nodeType, ip string, port int) (*models.Node, error)
	DeleteNode(nodeType, ip string, port int) error
}

// CountryResolver maps an IP address to an ISO country code. *geoip.Provider implements it.
type CountryResolver interface {
	CountryCode(ip string) string
}

// Tracker resolves registrations and queries registered nodes. *game.Querier implements it.
type Tracker interface {
	Resolve(ctx context.Context, req models.RegisterRequest) (models.Node, error)
	Refresh(ctx context.Context, node *models.Node) error
}

// LiveQuerier runs an aggregate SA-MP query. *samp.Client implements it.
type LiveQuerier interface {
	Query(ctx context.Context, req samp.Request) (*samp.Response, error)
}

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests and background registration processing.
type Server struct {
	// storage provides access to the persistent node records.
	storage NodeStore

	// geoip resolves node addresses to country codes. It may be nil.
	geoip CountryResolver

	// tracker resolves registrations and refreshes nodes in the background workers.
	tracker Tracker

	// live serves GET /api/query.
	live LiveQuerier

	// queue passes resolved registrations from the HTTP handler to the workers.
	queue chan registerJob

	// shutdown is closed to stop the background goroutines.
	shutdown chan struct{}

	// seenCache maps an xxhash of the node identity to the time it was last queued.
	// It backs the soft rate limit that skips repeated registrations of the same server.
	seenCache sync.Map

	// authToken is the bearer token required by the administrative endpoints.
	authToken string

	// wg waits for the background workers during shutdown.
	wg sync.WaitGroup

	// maxBody is the maximum accepted request body size in bytes.
	maxBody int64

	// workers is the number of background query workers.
	workers int

	// hardLimitCount is the maximum number of requests per client IP within hardLimitWin.
	hardLimitCount int

	// hardLimitWin is the time window of the hard rate limiter.
	hardLimitWin time.Duration

	// softLimitDur is how long a registered server is not queued again.
	softLimitDur time.Duration

	// queueMu orders sends on queue against its close in StopWorkers.
	queueMu sync.RWMutex

	// stopped is set under queueMu once queue is closed.
	stopped bool

	// trustProxy enables CF-Connecting-IP and X-Forwarded-For for the client address.
	trustProxy bool
}

// registerJob is a resolved registration waiting for its first query.
type registerJob struct {
	// Node carries the identity of the server; its info fields are filled by the worker.
	Node models.Node

	// Source is the address of the client that registered the server.
	Source string
}
