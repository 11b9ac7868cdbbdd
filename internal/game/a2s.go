package game

import (
	"context"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/models"
)

// DefaultA2SPort is assumed for a2s registrations without a port.
const DefaultA2SPort = 27015

// QueryA2S connects to a Source engine server via UDP and requests A2S_INFO.
func QueryA2S(ip string, port int, options config.A2S) (*a2s.Info, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	return client.GetInfo()
}

// refreshA2S runs QueryA2S off the caller's goroutine so that ctx can abandon it.
// The a2s client stops on its own timeout.
func (q *Querier) refreshA2S(ctx context.Context, node *models.Node) error {
	type result struct {
		info *a2s.Info
		err  error
	}
	done := make(chan result, 1)

	go func() {
		info, err := QueryA2S(node.IP, node.Port, q.a2s)
		done <- result{info, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		node.Hostname = r.info.Name
		node.Gamemode = r.info.Game
		node.Language = ""
		node.Version = r.info.Version
		node.Players = int(r.info.Players)
		node.MaxPlayers = int(r.info.MaxPlayers)
		node.Passworded = false
		node.Ping = 0
		return nil
	}
}
