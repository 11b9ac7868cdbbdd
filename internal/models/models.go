// Package models defines the data structures used for API requests and database persistence.
package models

import "time"

// Node types understood by the tracker.
const (
	// TypeSAMP nodes are queried with the SA-MP query protocol.
	TypeSAMP = "samp"

	// TypeA2S nodes are queried with the Source A2S_INFO request.
	TypeA2S = "a2s"
)

// ValidType reports whether t names a supported node type.
func ValidType(t string) bool {
	return t == TypeSAMP || t == TypeA2S
}

// RegisterRequest is the payload of POST /api/servers and of watchlist entries.
type RegisterRequest struct {
	Host string `json:"host" toml:"host"`
	Type string `json:"type,omitempty" toml:"type"`
	Port int    `json:"port,omitempty" toml:"port"`
}

// Node represents a tracked game server stored in the database.
// Info fields are empty until the server has answered a query once.
type Node struct {
	FirstSeen   time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
	Type        string    `json:"type" yaml:"type"`
	IP          string    `json:"ip" yaml:"ip"`
	CountryCode string    `json:"country_code" yaml:"country_code"`
	Hostname    string    `json:"hostname" yaml:"hostname"`
	Gamemode    string    `json:"gamemode" yaml:"gamemode"`
	Language    string    `json:"language" yaml:"language"`
	Version     string    `json:"version" yaml:"version"`
	Port        int       `json:"port" yaml:"port"`
	Count       int64     `json:"count" yaml:"count"`
	Ping        int64     `json:"ping_ms" yaml:"ping_ms"`
	Players     int       `json:"players" yaml:"players"`
	MaxPlayers  int       `json:"max_players" yaml:"max_players"`
	Passworded  bool      `json:"passworded" yaml:"passworded"`
}

// Answered reports whether the node has ever returned server information.
func (n *Node) Answered() bool {
	return n.Hostname != ""
}
