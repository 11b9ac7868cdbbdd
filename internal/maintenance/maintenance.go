// Package maintenance provides one-off tasks that clean up and refresh the node database.
package maintenance

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/models"
	"golang.org/x/time/rate"
)

// Workers is the number of concurrent re-checks.
const Workers = 10

// Store is the part of storage.Repository used by maintenance tasks.
type Store interface {
	DeleteEmptyNodes(nodeType string) (int64, error)
	GetNodesSubset(nodeType string, onlyEmpty bool) ([]models.Node, error)
	DeleteNode(nodeType, ip string, port int) error
	UpsertNode(n models.Node) error
}

// Refresher queries a node and updates its server information.
type Refresher interface {
	Refresh(ctx context.Context, node *models.Node) error
}

// Stats summarizes a re-check run.
type Stats struct {
	Updated int64
	Deleted int64
	Failed  int64
}

// Run checks if any maintenance flags are set and executes the corresponding task.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store Store, q Refresher) bool {
	if cfg.Storage.PruneEmpty != "" {
		nodeType := parseNodeType(cfg.Storage.PruneEmpty)
		log.Info().Str("type_filter", nodeType).Msg("Pruning empty nodes...")

		count, err := store.DeleteEmptyNodes(nodeType)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune nodes")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}

		return true
	}

	var (
		nodes    []models.Node
		err      error
		taskName string
	)

	// Inactive takes precedence when both checks are requested
	switch {
	case cfg.Storage.CheckInactive != "":
		taskName = "Check Inactive"
		nodeType := parseNodeType(cfg.Storage.CheckInactive)
		log.Info().Str("type_filter", nodeType).Msg("Fetching inactive nodes for check...")
		nodes, err = store.GetNodesSubset(nodeType, true)
	case cfg.Storage.CheckAll != "":
		taskName = "Check All"
		nodeType := parseNodeType(cfg.Storage.CheckAll)
		log.Info().Str("type_filter", nodeType).Msg("Fetching all nodes for re-check...")
		nodes, err = store.GetNodesSubset(nodeType, false)
	default:
		return false
	}

	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch nodes")
		return true
	}

	if len(nodes) == 0 {
		log.Info().Msg("No nodes found for maintenance")
		return true
	}

	log.Info().
		Int("count", len(nodes)).
		Int("workers", Workers).
		Float64("rate", cfg.Storage.CheckRate).
		Msgf("Starting '%s' task...", taskName)

	stats := Check(ctx, nodes, store, q, rate.NewLimiter(rate.Limit(cfg.Storage.CheckRate), 1))

	log.Info().
		Int64("updated", stats.Updated).
		Int64("deleted", stats.Deleted).
		Int64("failed", stats.Failed).
		Msg("Maintenance task completed")

	return true
}

// parseNodeType maps the AnyType sentinel of an optional flag to the empty
// filter understood by the storage layer.
func parseNodeType(input string) string {
	if input == config.AnyType {
		return ""
	}

	return input
}

// Check re-queries every node, paced by limiter. Nodes that answer are
// updated, nodes that do not are deleted. Cancelling ctx stops the run
// without deleting the nodes that were not checked.
func Check(ctx context.Context, nodes []models.Node, store Store, q Refresher, limiter *rate.Limiter) Stats {
	var (
		stats Stats
		wg    sync.WaitGroup
	)
	jobs := make(chan models.Node)

	for range Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for node := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					continue
				}
				processNode(ctx, node, store, q, &stats)
			}
		}()
	}

loop:
	for _, n := range nodes {
		select {
		case jobs <- n:
		case <-ctx.Done():
			break loop
		}
	}
	close(jobs)

	wg.Wait()

	return Stats{
		Updated: atomic.LoadInt64(&stats.Updated),
		Deleted: atomic.LoadInt64(&stats.Deleted),
		Failed:  atomic.LoadInt64(&stats.Failed),
	}
}

func processNode(ctx context.Context, node models.Node, store Store, q Refresher, stats *Stats) {
	logCtx := log.With().
		Str("type", node.Type).
		Str("ip", node.IP).
		Int("port", node.Port).
		Logger()

	if node.Port < 1 || node.Port > 65535 || !models.ValidType(node.Type) {
		logCtx.Debug().Msg("Invalid node, deleting")
		deleteNode(logCtx, node, store, stats)
		return
	}

	if err := q.Refresh(ctx, &node); err != nil {
		if ctx.Err() != nil {
			return
		}
		logCtx.Debug().Err(err).Msg("Server unreachable, deleting node")
		deleteNode(logCtx, node, store, stats)
		return
	}

	if err := store.UpsertNode(node); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		logCtx.Error().Err(err).Msg("Failed to update node")
		return
	}

	atomic.AddInt64(&stats.Updated, 1)
	logCtx.Trace().Msg("Node updated successfully")
}

func deleteNode(logCtx zerolog.Logger, node models.Node, store Store, stats *Stats) {
	if err := store.DeleteNode(node.Type, node.IP, node.Port); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		logCtx.Error().Err(err).Msg("Failed to delete node")
		return
	}

	atomic.AddInt64(&stats.Deleted, 1)
}
