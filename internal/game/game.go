// Package game queries tracked servers with the protocol of their node type:
// the SA-MP query protocol for samp nodes and A2S_INFO for a2s nodes.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/config"
	"github.com/woozymasta/sampquery/internal/models"
	"github.com/woozymasta/sampquery/pkg/samp"
)

// Observer receives every SA-MP exchange, typically metrics.ObserveExchange.
type Observer func(op samp.Opcode, rtt time.Duration, err error)

// NewSAMPClient builds a query client from the query options.
func NewSAMPClient(cfg config.Query, observe Observer) (*samp.Client, error) {
	charset, err := samp.Charset(cfg.Charset)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "samp").Logger()

	return samp.New(samp.Options{
		Charset:     charset,
		Logger:      &logger,
		Observe:     observe,
		Timeout:     cfg.Timeout,
		PlayerLimit: cfg.PlayerLimit,
		Port:        cfg.Port,
		Sequential:  cfg.Sequential,
	}), nil
}

// Querier refreshes nodes of every supported type.
type Querier struct {
	samp *samp.Client
	a2s  config.A2S
}

// New returns a Querier using client for samp nodes and a2sOpts for a2s nodes.
func New(client *samp.Client, a2sOpts config.A2S) *Querier {
	return &Querier{samp: client, a2s: a2sOpts}
}

// Client returns the SA-MP query client.
func (q *Querier) Client() *samp.Client {
	return q.samp
}

// Resolve validates a registration and resolves its host to an IPv4 node.
// The node carries no server information yet.
func (q *Querier) Resolve(ctx context.Context, req models.RegisterRequest) (models.Node, error) {
	nodeType := req.Type
	if nodeType == "" {
		nodeType = models.TypeSAMP
	}
	if !models.ValidType(nodeType) {
		return models.Node{}, fmt.Errorf("%w: unknown node type %q", samp.ErrValidation, req.Type)
	}

	port := req.Port
	if port == 0 && nodeType == models.TypeA2S {
		port = DefaultA2SPort
	}

	ep, _, err := q.samp.Resolve(ctx, samp.Request{Host: req.Host, Port: port})
	if err != nil {
		return models.Node{}, err
	}

	now := time.Now()
	return models.Node{
		Type:      nodeType,
		IP:        ep.Address,
		Port:      int(ep.Port),
		FirstSeen: now,
		LastSeen:  now,
	}, nil
}

// Refresh queries node and overwrites its server information and LastSeen.
// On error the node is left unchanged.
func (q *Querier) Refresh(ctx context.Context, node *models.Node) error {
	updated := *node

	switch node.Type {
	case models.TypeSAMP:
		resp, err := q.samp.QueryEndpoint(ctx, samp.Endpoint{Address: node.IP, Port: uint16(node.Port)}, 0)
		if err != nil {
			return err
		}
		ApplyResponse(&updated, resp)
	case models.TypeA2S:
		if err := q.refreshA2S(ctx, &updated); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown node type %q", samp.ErrValidation, node.Type)
	}

	updated.LastSeen = time.Now()
	*node = updated

	return nil
}

// ApplyResponse copies the server information of a SA-MP query into node.
func ApplyResponse(node *models.Node, resp *samp.Response) {
	node.Hostname = resp.Hostname
	node.Gamemode = resp.Gamemode
	node.Language = resp.Language
	node.Players = int(resp.Online)
	node.MaxPlayers = int(resp.MaxPlayers)
	node.Passworded = resp.Passworded
	node.Ping = resp.Ping.Milliseconds()
	node.Version = ""
	if v, ok := resp.Rules.Get("version"); ok {
		node.Version = v.String()
	}
}
