package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/game"
	"github.com/woozymasta/sampquery/internal/models"
	"github.com/woozymasta/sampquery/internal/output"
	"github.com/woozymasta/sampquery/internal/watchlist"
	"github.com/woozymasta/sampquery/pkg/samp"
	"golang.org/x/sync/errgroup"
)

// queryParallelism caps the number of servers queried at once.
const queryParallelism = 16

// queryer is the part of *samp.Client used by the query mode.
type queryer interface {
	Query(ctx context.Context, req samp.Request) (*samp.Response, error)
}

// result is the outcome of querying one target.
type result struct {
	Response *samp.Response `json:"response,omitempty"`
	Target   string         `json:"target"`
	Kind     string         `json:"kind"`
	Error    string         `json:"error,omitempty"`
}

func (r result) TableHeader() []string {
	return []string{"TARGET", "HOSTNAME", "PLAYERS", "PING", "GAMEMODE", "LANGUAGE", "ERROR"}
}

func (r result) TableRow() []string {
	if r.Response == nil {
		return []string{r.Target, "", "", "", "", "", r.Error}
	}

	resp := r.Response
	return []string{
		r.Target,
		resp.Hostname,
		fmt.Sprintf("%d/%d", resp.Online, resp.MaxPlayers),
		resp.Ping.Round(time.Millisecond).String(),
		resp.Gamemode,
		resp.Language,
		"",
	}
}

// parseTarget splits "host[:port]". A missing port leaves the client default in place.
func parseTarget(arg string) (samp.Request, error) {
	host, portStr, err := net.SplitHostPort(arg)
	if err != nil {
		// No port given
		return samp.Request{Host: arg}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return samp.Request{}, fmt.Errorf("invalid port in %q", arg)
	}

	return samp.Request{Host: host, Port: port}, nil
}

// targets collects the positional hosts followed by the samp entries of the watchlist.
func targets(cfg *config.Config) ([]samp.Request, []string, error) {
	var (
		reqs   []samp.Request
		labels []string
	)

	for _, arg := range cfg.Args.Hosts {
		req, err := parseTarget(arg)
		if err != nil {
			return nil, nil, err
		}
		reqs = append(reqs, req)
		labels = append(labels, arg)
	}

	if cfg.Watchlist != "" {
		entries, err := watchlist.Load(cfg.Watchlist)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			if e.Type != models.TypeSAMP {
				log.Warn().Str("host", e.Host).Str("type", e.Type).Msg("Skipping non SA-MP watchlist entry")
				continue
			}
			label := e.Host
			if e.Port != 0 {
				label = net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
			}
			reqs = append(reqs, samp.Request{Host: e.Host, Port: e.Port})
			labels = append(labels, label)
		}
	}

	return reqs, labels, nil
}

// queryAll queries every request concurrently and returns the results in input order.
func queryAll(ctx context.Context, client queryer, reqs []samp.Request, labels []string) []result {
	results := make([]result, len(reqs))

	var g errgroup.Group
	g.SetLimit(queryParallelism)

	for i, req := range reqs {
		g.Go(func() error {
			resp, err := client.Query(ctx, req)
			results[i] = result{Target: labels[i], Response: resp, Kind: samp.Kind(err)}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runQuery prints the result of a one-shot query and returns the process exit code.
func runQuery(ctx context.Context, cfg *config.Config, w io.Writer) int {
	reqs, labels, err := targets(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid query targets")
		return 2
	}

	client, err := game.NewSAMPClient(cfg.Query, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create query client")
		return 2
	}

	results := queryAll(ctx, client, reqs, labels)

	var data any = results
	if len(results) == 1 {
		data = results[0]
	}
	if err := output.NewFormatter(cfg.Output).Format(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to write output")
		return 1
	}

	code := 0
	for _, r := range results {
		if r.Error != "" {
			log.Debug().Str("target", r.Target).Str("kind", r.Kind).Msg("Query failed")
			code = 1
		}
	}

	return code
}
