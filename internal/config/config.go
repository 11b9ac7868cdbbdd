// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/sampquery/internal/logger"
	"github.com/woozymasta/sampquery/internal/vars"
)

// AnyType marks a maintenance task that applies to nodes of every type.
const AnyType = "AnyType"

// Mode is what the process does after parsing its configuration.
type Mode int

// Run modes.
const (
	// ModeService runs the HTTP tracking service.
	ModeService Mode = iota

	// ModeQuery queries the hosts given as arguments and exits.
	ModeQuery

	// ModeFakeServer runs a local SA-MP responder for development.
	ModeFakeServer
)

// ErrMissingToken is returned when the service is started without an admin token.
var ErrMissingToken = errors.New("required flag `-t, --auth-token' or environment variable `SAMPQUERY_AUTH_TOKEN' was not specified")

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"SAMPQUERY"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"SAMPQUERY_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"SAMPQUERY_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"SAMPQUERY_RATE_LIMIT"`
	Query     Query         `group:"Query Options" namespace:"query" env-namespace:"SAMPQUERY_QUERY"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"SAMPQUERY_A2S"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SAMPQUERY_LOG"`

	Output     string `short:"o" long:"output" env:"SAMPQUERY_OUTPUT" description:"Query result format" choice:"json" choice:"yaml" choice:"table" default:"json"`
	Watchlist  string `short:"w" long:"watchlist" env:"SAMPQUERY_WATCHLIST" description:"TOML file with servers to track or query"`
	FakeServer string `long:"fake-server" hidden:"true" description:"Run a fake SA-MP server on the given UDP address"`
	Version    bool   `short:"v" long:"version" description:"Print version and build info"`

	Args struct {
		Hosts []string `positional-arg-name:"host[:port]" description:"Servers to query once; starts the service when omitted"`
	} `positional-args:"yes"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"512"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
	Workers     int    `long:"workers" env:"WORKERS" description:"Background query workers" default:"10"`
	QueueSize   int    `long:"queue-size" env:"QUEUE_SIZE" description:"Pending registrations kept before dropping" default:"1000"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path          string  `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"sampquery.db"`
	PruneEmpty    string  `long:"prune-empty" description:"Delete nodes that never answered a query. Optional arg: node type." optional:"true" optional-value:"AnyType"`
	CheckInactive string  `long:"check-inactive" description:"Re-check nodes that never answered. Update if UP, delete if DOWN. Optional arg: node type." optional:"true" optional-value:"AnyType"`
	CheckAll      string  `long:"check-all" description:"Re-check ALL nodes. Update if UP, delete if DOWN. Optional arg: node type." optional:"true" optional-value:"AnyType"`
	CheckRate     float64 `long:"check-rate" env:"CHECK_RATE" description:"Maximum server queries per second during checks" default:"20"`
	GenerateCount int     `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"sampquery.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// Query holds SA-MP query protocol configuration.
type Query struct {
	// betteralign:ignore

	Timeout     time.Duration `long:"timeout" env:"TIMEOUT" description:"Reply window for each request" default:"1s"`
	Port        uint16        `long:"port" env:"PORT" description:"Port used when a host has none" default:"7777"`
	Charset     string        `long:"charset" env:"CHARSET" description:"Code page of server strings" default:"windows-1251"`
	PlayerLimit int           `long:"player-limit" env:"PLAYER_LIMIT" description:"Skip the player list above this many players online, -1 to never request it, 0 is rejected" default:"100"`
	Sequential  bool          `long:"sequential" env:"SEQUENTIAL" description:"Send info, rules and players requests one after another"`
}

// A2S holds Source Query protocol configuration for a2s nodes.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"8"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft" env:"SOFT" description:"Soft server limit: ignore registration if seen within duration" default:"5m"`
}

// Mode reports what the process should do with this configuration.
func (c *Config) Mode() Mode {
	switch {
	case len(c.Args.Hosts) > 0:
		return ModeQuery
	case c.FakeServer != "":
		return ModeFakeServer
	default:
		return ModeService
	}
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := load(os.Args[1:], flags.Default)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print(os.Stdout)
		os.Exit(0)
	}

	return cfg
}

// Load parses args and the environment without printing or exiting.
func Load(args []string) (*Config, error) {
	return load(args, flags.HelpFlag|flags.PassDoubleDash)
}

func load(args []string, options flags.Options) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, options)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if cfg.Version {
		return &cfg, nil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.Query.Timeout)
	}
	if c.Query.Port == 0 {
		return errors.New("query port must not be zero")
	}
	if c.Query.PlayerLimit == 0 {
		return errors.New("query player limit must not be zero, use -1 to skip the player list")
	}
	if c.Storage.CheckRate <= 0 {
		return fmt.Errorf("check rate must be positive, got %g", c.Storage.CheckRate)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Server.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.Server.QueueSize)
	}
	if c.Mode() == ModeService && !c.maintenance() && c.Server.AuthToken == "" {
		return ErrMissingToken
	}

	return nil
}

// maintenance reports whether a one-off database task was requested.
func (c *Config) maintenance() bool {
	return c.Storage.PruneEmpty != "" || c.Storage.CheckInactive != "" ||
		c.Storage.CheckAll != "" || c.Storage.GenerateCount > 0
}
