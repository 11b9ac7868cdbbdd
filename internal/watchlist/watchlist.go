// Package watchlist loads the list of servers to track from a TOML file.
//
//	type = "samp" # default for entries without a type
//	port = 7777   # default for entries without a port
//
//	[[server]]
//	host = "samp.example.com"
//
//	[[server]]
//	host = "203.0.113.7"
//	port = 27015
//	type = "a2s"
package watchlist

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/woozymasta/sampquery/internal/models"
)

type fileConfig struct {
	Type    string                   `toml:"type"`
	Servers []models.RegisterRequest `toml:"server"`
	Port    int                      `toml:"port"`
}

// Load reads path and returns its entries with defaults applied.
func Load(path string) ([]models.RegisterRequest, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load watchlist: unknown key %q", undecoded[0].String())
	}

	defType := models.TypeSAMP
	if meta.IsDefined("type") {
		defType = strings.ToLower(strings.TrimSpace(raw.Type))
		if !models.ValidType(defType) {
			return nil, fmt.Errorf("load watchlist: unknown default type %q", raw.Type)
		}
	}

	out := make([]models.RegisterRequest, 0, len(raw.Servers))
	for i, s := range raw.Servers {
		s.Host = strings.TrimSpace(s.Host)
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))

		if s.Host == "" {
			return nil, fmt.Errorf("load watchlist: server[%d]: missing host", i)
		}
		if s.Type == "" {
			s.Type = defType
		}
		if !models.ValidType(s.Type) {
			return nil, fmt.Errorf("load watchlist: server[%d]: unknown type %q", i, s.Type)
		}
		if s.Port == 0 {
			s.Port = raw.Port
		}
		if s.Port < 0 || s.Port > 65535 {
			return nil, fmt.Errorf("load watchlist: server[%d]: port %d out of range", i, s.Port)
		}

		out = append(out, s)
	}

	return out, nil
}
