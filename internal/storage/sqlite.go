// Package storage persists tracked servers in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"io/fs"
	"time"

	"github.com/woozymasta/sampquery/assets"
	"github.com/woozymasta/sampquery/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

const nodeColumns = `type, ip, port, country_code, hostname, gamemode, language, version,
	players, max_players, passworded, ping, count, first_seen, last_seen`

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the embedded migrations.
func New(dbPath string) (*Repository, error) {
	return open(dbPath, assets.Migrations())
}

func open(dbPath string, migrations fs.FS) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db, migrations); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertNode inserts a node or bumps the counter of an existing one.
// Server information is only overwritten by a node that carries a hostname,
// so a failed query never erases what a previous one learned.
func (r *Repository) UpsertNode(n models.Node) error {
	query := `
	INSERT INTO nodes (` + nodeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(type, ip, port) DO UPDATE SET
		count = count + 1,
		last_seen = excluded.last_seen,

		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE nodes.country_code END,

		hostname    = CASE WHEN excluded.hostname != '' THEN excluded.hostname ELSE nodes.hostname END,
		gamemode    = CASE WHEN excluded.hostname != '' THEN excluded.gamemode ELSE nodes.gamemode END,
		language    = CASE WHEN excluded.hostname != '' THEN excluded.language ELSE nodes.language END,
		version     = CASE WHEN excluded.hostname != '' THEN excluded.version ELSE nodes.version END,
		players     = CASE WHEN excluded.hostname != '' THEN excluded.players ELSE nodes.players END,
		max_players = CASE WHEN excluded.hostname != '' THEN excluded.max_players ELSE nodes.max_players END,
		passworded  = CASE WHEN excluded.hostname != '' THEN excluded.passworded ELSE nodes.passworded END,
		ping        = CASE WHEN excluded.hostname != '' THEN excluded.ping ELSE nodes.ping END;
	`

	// LastSeen doubles as FirstSeen for new records
	_, err := r.db.Exec(query,
		n.Type, n.IP, n.Port, n.CountryCode, n.Hostname, n.Gamemode, n.Language, n.Version,
		n.Players, n.MaxPlayers, n.Passworded, n.Ping,
		n.FirstSeen, n.LastSeen,
	)

	return err
}

// GetNodes retrieves all nodes, most recently seen first.
func (r *Repository) GetNodes() ([]models.Node, error) {
	rows, err := r.db.Query(`SELECT ` + nodeColumns + ` FROM nodes ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

// GetNode retrieves a node by type, ip and port. It returns nil, nil when none exists.
func (r *Repository) GetNode(nodeType, ip string, port int) (*models.Node, error) {
	row := r.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE type = ? AND ip = ? AND port = ?`,
		nodeType, ip, port)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &n, nil
}

// DeleteNode removes the node identified by type, ip and port.
func (r *Repository) DeleteNode(nodeType, ip string, port int) error {
	_, err := r.db.Exec(`DELETE FROM nodes WHERE type = ? AND ip = ? AND port = ?`, nodeType, ip, port)
	return err
}

// DeleteEmptyNodes removes nodes that never answered a query.
// A non-empty nodeType restricts deletion to that type.
func (r *Repository) DeleteEmptyNodes(nodeType string) (int64, error) {
	query := `DELETE FROM nodes WHERE hostname = ''`
	var args []any

	if nodeType != "" {
		query += ` AND type = ?`
		args = append(args, nodeType)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// GetNodesSubset retrieves nodes for maintenance, optionally filtered by type
// and restricted to nodes that never answered.
func (r *Repository) GetNodesSubset(nodeType string, onlyEmpty bool) ([]models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE 1=1`
	var args []any

	if nodeType != "" {
		query += ` AND type = ?`
		args = append(args, nodeType)
	}
	if onlyEmpty {
		query += ` AND hostname = ''`
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (models.Node, error) {
	var n models.Node
	err := s.Scan(
		&n.Type, &n.IP, &n.Port, &n.CountryCode, &n.Hostname, &n.Gamemode, &n.Language, &n.Version,
		&n.Players, &n.MaxPlayers, &n.Passworded, &n.Ping, &n.Count, &n.FirstSeen, &n.LastSeen,
	)

	return n, err
}

func collectNodes(rows *sql.Rows) ([]models.Node, error) {
	defer func() { _ = rows.Close() }()

	nodes := []models.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nodes, nil
}
