package samp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
)

// Resolver looks up the addresses of a host name. *net.Resolver implements it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ExchangeFunc performs one request/response exchange. Exchange is the default.
type ExchangeFunc func(ctx context.Context, ep Endpoint, packet []byte, timeout time.Duration) (Reply, error)

// Options configures a Client. Zero values select the package defaults.
type Options struct {
	// Charset decodes wire strings. Defaults to DefaultCharset.
	Charset encoding.Encoding

	// Resolver resolves host names to IPv4 addresses. Defaults to net.DefaultResolver.
	Resolver Resolver

	// Logger receives per-exchange trace events. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// Observe, if set, is called after every exchange with its opcode, round trip and error.
	Observe func(op Opcode, rtt time.Duration, err error)

	// Exchange replaces the UDP transport, mainly for tests.
	Exchange ExchangeFunc

	// Timeout is the reply window used when a Request does not set one. Defaults to DefaultTimeout.
	Timeout time.Duration

	// PlayerLimit is the online count above which the player list is skipped.
	// Defaults to DefaultPlayerLimit; negative disables the player list entirely.
	PlayerLimit int

	// Port is used when a Request does not set one. Defaults to DefaultPort.
	Port uint16

	// Sequential issues info, rules and players one after another instead of concurrently.
	Sequential bool
}

// Request identifies the server to query.
type Request struct {
	// Host is an IPv4 literal or a host name resolved to its first A record.
	Host string

	// Port defaults to Options.Port when zero. Values outside 1..65535 are rejected.
	Port int

	// Timeout is the reply window for each exchange. Defaults to Options.Timeout when zero.
	Timeout time.Duration
}

// Client queries SA-MP servers. It holds no per-query state and is safe for concurrent use.
type Client struct {
	charset     encoding.Encoding
	resolver    Resolver
	log         *zerolog.Logger
	observe     func(Opcode, time.Duration, error)
	exchange    ExchangeFunc
	timeout     time.Duration
	playerLimit int
	port        uint16
	sequential  bool
}

// New returns a Client configured by opts.
func New(opts Options) *Client {
	c := &Client{
		charset:     opts.Charset,
		resolver:    opts.Resolver,
		log:         opts.Logger,
		observe:     opts.Observe,
		exchange:    opts.Exchange,
		timeout:     opts.Timeout,
		playerLimit: opts.PlayerLimit,
		port:        opts.Port,
		sequential:  opts.Sequential,
	}

	if c.charset == nil {
		c.charset = DefaultCharset
	}
	if c.resolver == nil {
		c.resolver = net.DefaultResolver
	}
	if c.log == nil {
		nop := zerolog.Nop()
		c.log = &nop
	}
	if c.exchange == nil {
		c.exchange = Exchange
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.playerLimit == 0 {
		c.playerLimit = DefaultPlayerLimit
	}
	if c.port == 0 {
		c.port = DefaultPort
	}

	return c
}

// Resolve validates req and resolves its host, returning the endpoint and the
// effective timeout. It performs no I/O other than DNS.
func (c *Client) Resolve(ctx context.Context, req Request) (Endpoint, time.Duration, error) {
	host := strings.TrimSpace(req.Host)
	if host == "" {
		return Endpoint{}, 0, &QueryError{Kind: ErrValidation, Err: errors.New("missing host")}
	}

	port := req.Port
	if port == 0 {
		port = int(c.port)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, 0, &QueryError{Kind: ErrValidation, Err: fmt.Errorf("port %d out of range", req.Port)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout < 0 {
		return Endpoint{}, 0, &QueryError{Kind: ErrValidation, Err: fmt.Errorf("negative timeout %s", req.Timeout)}
	}

	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return Endpoint{}, 0, &QueryError{Kind: ErrValidation, Err: fmt.Errorf("IPv6 address %s is not supported", host)}
		}
		return Endpoint{Address: ip4.String(), Port: uint16(port)}, timeout, nil
	}

	ips, err := c.resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return Endpoint{}, 0, &QueryError{Kind: ErrResolve, Err: err}
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return Endpoint{Address: ip4.String(), Port: uint16(port)}, timeout, nil
		}
	}

	return Endpoint{}, 0, &QueryError{Kind: ErrResolve, Err: fmt.Errorf("no A record for %s", host)}
}

// Query validates and resolves req, then fetches server information, rules
// and, unless the server reports more than the player limit online, the player list.
//
// Failures of the info or rules requests abort the query. A player list that
// times out or cannot be sent yields an empty list instead.
func (c *Client) Query(ctx context.Context, req Request) (*Response, error) {
	ep, timeout, err := c.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	return c.QueryEndpoint(ctx, ep, timeout)
}

// QueryEndpoint is Query for an already resolved endpoint.
func (c *Client) QueryEndpoint(ctx context.Context, ep Endpoint, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	var (
		info    ServerInfo
		ping    time.Duration
		rules   *RuleSet
		players []Player
		err     error
	)

	if c.sequential {
		info, ping, rules, players, err = c.querySequential(ctx, ep, timeout)
	} else {
		info, ping, rules, players, err = c.queryParallel(ctx, ep, timeout)
	}
	if err != nil {
		return nil, err
	}

	if players == nil {
		players = []Player{}
	}

	return &Response{
		Address:    ep.Address,
		Port:       ep.Port,
		Ping:       ping,
		ServerInfo: info,
		Rules:      rules,
		Players:    players,
	}, nil
}

func (c *Client) querySequential(ctx context.Context, ep Endpoint, timeout time.Duration) (ServerInfo, time.Duration, *RuleSet, []Player, error) {
	info, ping, err := c.Info(ctx, ep, timeout)
	if err != nil {
		return ServerInfo{}, 0, nil, nil, err
	}

	rules, err := c.Rules(ctx, ep, timeout)
	if err != nil {
		return ServerInfo{}, 0, nil, nil, err
	}

	var players []Player
	if c.wantPlayers(info) {
		if players, err = c.playersBestEffort(ctx, ep, timeout); err != nil {
			return ServerInfo{}, 0, nil, nil, err
		}
	}

	return info, ping, rules, players, nil
}

func (c *Client) queryParallel(ctx context.Context, ep Endpoint, timeout time.Duration) (ServerInfo, time.Duration, *RuleSet, []Player, error) {
	var (
		info    ServerInfo
		ping    time.Duration
		rules   *RuleSet
		players []Player
	)

	infoReady := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if info, ping, err = c.Info(gctx, ep, timeout); err != nil {
			return err
		}
		close(infoReady)
		return nil
	})

	g.Go(func() error {
		var err error
		rules, err = c.Rules(gctx, ep, timeout)
		return err
	})

	// The player list waits for the online count so that large servers are never asked for it.
	g.Go(func() error {
		select {
		case <-infoReady:
		case <-gctx.Done():
			return nil
		}
		if !c.wantPlayers(info) {
			return nil
		}

		var err error
		players, err = c.playersBestEffort(gctx, ep, timeout)
		return err
	})

	if err := g.Wait(); err != nil {
		return ServerInfo{}, 0, nil, nil, err
	}

	return info, ping, rules, players, nil
}

func (c *Client) wantPlayers(info ServerInfo) bool {
	if c.playerLimit < 0 || int(info.Online) > c.playerLimit {
		c.log.Trace().
			Uint16("online", info.Online).
			Int("limit", c.playerLimit).
			Msg("Skipping player list")
		return false
	}

	return true
}

// playersBestEffort degrades transport failures of the player list to an empty roster.
func (c *Client) playersBestEffort(ctx context.Context, ep Endpoint, timeout time.Duration) ([]Player, error) {
	players, err := c.Players(ctx, ep, timeout)
	if err == nil {
		return players, nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) {
		c.log.Debug().
			Err(err).
			Str("endpoint", ep.String()).
			Msg("Player list unavailable")
		return []Player{}, nil
	}

	return nil, err
}

// Info requests and decodes the server information, returning it with the measured round trip.
func (c *Client) Info(ctx context.Context, ep Endpoint, timeout time.Duration) (ServerInfo, time.Duration, error) {
	info, reply, err := fetch(ctx, c, ep, OpInfo, timeout, DecodeInfo)
	if err != nil {
		return ServerInfo{}, 0, err
	}

	return info, reply.RTT, nil
}

// Rules requests and decodes the server rules, normalized as described on Response.Rules.
func (c *Client) Rules(ctx context.Context, ep Endpoint, timeout time.Duration) (*RuleSet, error) {
	rules, _, err := fetch(ctx, c, ep, OpRules, timeout, DecodeRules)
	if err != nil {
		return nil, err
	}
	normalizeRules(rules)

	return rules, nil
}

// Players requests and decodes the detailed player list.
func (c *Client) Players(ctx context.Context, ep Endpoint, timeout time.Duration) ([]Player, error) {
	players, _, err := fetch(ctx, c, ep, OpPlayers, timeout, DecodePlayers)
	if err != nil {
		return nil, err
	}

	return players, nil
}

// fetch performs one exchange for op and decodes the reply. Every outcome is
// reported once to the observer and the logger.
func fetch[T any](
	ctx context.Context,
	c *Client,
	ep Endpoint,
	op Opcode,
	timeout time.Duration,
	decode func([]byte, encoding.Encoding) (T, error),
) (T, Reply, error) {
	var zero T

	reply, err := c.roundTrip(ctx, ep, op, timeout)
	if err == nil {
		var v T
		if v, err = decode(reply.Data, c.charset); err == nil {
			c.report(ep, op, reply, nil)
			return v, reply, nil
		}
		err = &QueryError{Kind: ErrProtocol, Err: err, Op: op, Endpoint: ep, Elapsed: reply.RTT}
	}
	c.report(ep, op, reply, err)

	return zero, reply, err
}

// roundTrip encodes and sends one request.
func (c *Client) roundTrip(ctx context.Context, ep Endpoint, op Opcode, timeout time.Duration) (Reply, error) {
	packet, err := EncodeRequest(ep.Address, ep.Port, op)
	if err != nil {
		return Reply{}, &QueryError{Kind: ErrValidation, Err: err, Op: op, Endpoint: ep}
	}

	reply, err := c.exchange(ctx, ep, packet, timeout)
	if err != nil {
		var qe *QueryError
		if !errors.As(err, &qe) {
			err = &QueryError{Kind: kindOf(err), Err: err, Op: op, Endpoint: ep}
		}
		return Reply{}, err
	}

	return reply, nil
}

func (c *Client) report(ep Endpoint, op Opcode, reply Reply, err error) {
	rtt := reply.RTT
	var qe *QueryError
	if errors.As(err, &qe) && qe.Elapsed > 0 {
		rtt = qe.Elapsed
	}

	if c.observe != nil {
		c.observe(op, rtt, err)
	}

	ev := c.log.Trace()
	if err != nil {
		ev = c.log.Debug().Err(err)
	}
	ev.Str("endpoint", ep.String()).
		Stringer("op", op).
		Int("bytes", len(reply.Data)).
		Dur("rtt", rtt).
		Msg("SA-MP exchange")
}
