package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements GraphStore using a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	config SQLiteConfig
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	DBPath      string
	EnableWAL   bool // Write-Ahead Logging for better concurrency
	CacheSize   int  // Page cache size in KB
	BusyTimeout int  // Milliseconds to wait on locked database
}

// NewSQLiteStore creates a new SQLite-based graph store
func NewSQLiteStore(dbPath string, config SQLiteConfig) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "netgraph.db"
	}

	// Pragmas go in the DSN so every pooled connection gets them
	db, err := sql.Open("sqlite", sqliteDSN(dbPath, config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		config: config,
	}

	if err := store.initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func sqliteDSN(dbPath string, config SQLiteConfig) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", "synchronous(NORMAL)")
	if config.BusyTimeout > 0 {
		pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", config.BusyTimeout))
	}
	if config.EnableWAL {
		pragmas.Add("_pragma", "journal_mode(WAL)")
	}
	if config.CacheSize > 0 {
		pragmas.Add("_pragma", fmt.Sprintf("cache_size(-%d)", config.CacheSize))
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + pragmas.Encode()
}

// initialize creates the schema. Every statement is idempotent.
func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('person', 'organization')),
			aliases TEXT NOT NULL DEFAULT '[]', -- JSON array
			external_id TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_node_id INTEGER NOT NULL REFERENCES nodes(id),
			target_node_id INTEGER NOT NULL REFERENCES nodes(id),
			relationship_type TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			metadata TEXT NOT NULL DEFAULT '{}', -- JSON object
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (source_node_id, target_node_id)
		);

		CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_node_id);

		-- Version tracking for migrations
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// Info returns store information
func (s *SQLiteStore) Info() StoreInfo {
	return StoreInfo{
		Type:    "sqlite",
		Version: "1.0.0",
		Target:  s.dbPath,
	}
}

// UpsertNode inserts a node or, when the external id is already known, refreshes
// its name and type. A changed name is appended to the aliases.
func (s *SQLiteStore) UpsertNode(ctx context.Context, in models.NodeInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO nodes (name, type, aliases, external_id)
		VALUES (?, ?, json_array(?), ?)
		ON CONFLICT(external_id) DO UPDATE SET
			aliases = CASE
				WHEN nodes.name <> excluded.name
					AND NOT EXISTS (SELECT 1 FROM json_each(nodes.aliases) WHERE value = excluded.name)
				THEN json_insert(nodes.aliases, '$[#]', excluded.name)
				ELSE nodes.aliases
			END,
			name = excluded.name,
			type = excluded.type,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, in.Name, string(in.Type), in.Name, in.ExternalID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert node %s: %v", ErrStorageFailure, in.ExternalID, err)
	}

	return id, nil
}

// NodeIDByExternalID resolves an external id to the local node id
func (s *SQLiteStore) NodeIDByExternalID(ctx context.Context, externalID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM nodes WHERE external_id = ?", externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query node: %w", err)
	}
	return id, nil
}

// GetNode retrieves a node by local id
func (s *SQLiteStore) GetNode(ctx context.Context, id int64) (models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, aliases, external_id, created_at, updated_at
		FROM nodes WHERE id = ?
	`, id)

	node, err := scanSQLiteNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("failed to query node: %w", err)
	}
	return node, nil
}

// EdgeExists reports whether an edge with exactly this ordered pair is stored
func (s *SQLiteStore) EdgeExists(ctx context.Context, sourceID, targetID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM edges WHERE source_node_id = ? AND target_node_id = ?)
	`, sourceID, targetID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query edge: %w", err)
	}
	return exists, nil
}

// InsertEdge stores a new edge. ErrDuplicateEdge is returned if the ordered
// pair is already present.
func (s *SQLiteStore) InsertEdge(ctx context.Context, e models.Edge) (int64, error) {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO edges (source_node_id, target_node_id, relationship_type, confidence, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_node_id, target_node_id) DO NOTHING
		RETURNING id
	`, e.SourceNodeID, e.TargetNodeID, e.RelationshipType, e.Confidence, metadata).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDuplicateEdge
	}
	if err != nil {
		return 0, fmt.Errorf("%w: insert edge %d->%d: %v", ErrStorageFailure, e.SourceNodeID, e.TargetNodeID, err)
	}
	return id, nil
}

// ListNodes returns every node ordered by id
func (s *SQLiteStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, aliases, external_id, created_at, updated_at
		FROM nodes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.Node{}
	for rows.Next() {
		node, err := scanSQLiteNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// ListEdges returns every edge ordered by id
func (s *SQLiteStore) ListEdges(ctx context.Context) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, relationship_type, confidence, metadata, created_at
		FROM edges ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []models.Edge{}
	for rows.Next() {
		var (
			e         models.Edge
			metadata  string
			createdAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &e.RelationshipType,
			&e.Confidence, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Metadata = unmarshalMetadata(metadata)
		e.CreatedAt = parseTimestamp(createdAt.String)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesForNode returns the union of outbound and inbound edges of a node, each
// annotated with the node on the other end
func (s *SQLiteStore) EdgesForNode(ctx context.Context, id int64) ([]models.NeighborEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.source_node_id, e.target_node_id, e.relationship_type,
		       e.confidence, e.metadata, e.created_at, n.id, n.name
		FROM edges e
		JOIN nodes n ON n.id = CASE WHEN e.source_node_id = ? THEN e.target_node_id ELSE e.source_node_id END
		WHERE e.source_node_id = ? OR e.target_node_id = ?
		ORDER BY e.id
	`, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	edges := []models.NeighborEdge{}
	for rows.Next() {
		var (
			ne        models.NeighborEdge
			metadata  string
			createdAt sql.NullString
		)
		if err := rows.Scan(&ne.ID, &ne.SourceNodeID, &ne.TargetNodeID, &ne.RelationshipType,
			&ne.Confidence, &metadata, &createdAt, &ne.PeerID, &ne.PeerName); err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		ne.Metadata = unmarshalMetadata(metadata)
		ne.CreatedAt = parseTimestamp(createdAt.String)
		ne.Direction = directionFor(id, ne.SourceNodeID)
		edges = append(edges, ne)
	}
	return edges, rows.Err()
}

// Stats returns node and edge counts
func (s *SQLiteStore) Stats(ctx context.Context) (models.GraphStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.GraphStats
	err := s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM nodes), (SELECT COUNT(*) FROM edges)").
		Scan(&stats.NodeCount, &stats.EdgeCount)
	if err != nil {
		return models.GraphStats{}, fmt.Errorf("failed to count graph: %w", err)
	}
	return stats, nil
}

// Ping checks that the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteNode(row rowScanner) (models.Node, error) {
	var (
		node                 models.Node
		nodeType, aliases    string
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&node.ID, &node.Name, &nodeType, &aliases, &node.ExternalID,
		&createdAt, &updatedAt); err != nil {
		return models.Node{}, err
	}

	node.Type = models.NodeType(nodeType)
	node.Aliases = []string{}
	if aliases != "" {
		if err := json.Unmarshal([]byte(aliases), &node.Aliases); err != nil {
			return models.Node{}, fmt.Errorf("failed to unmarshal aliases: %w", err)
		}
	}
	node.CreatedAt = parseTimestamp(createdAt.String)
	node.UpdatedAt = parseTimestamp(updatedAt.String)
	return node, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// unmarshalMetadata decodes numbers as json.Number so 64-bit ids round-trip
func unmarshalMetadata(raw string) map[string]any {
	if raw == "" || raw == "{}" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts both the driver's time rendering and SQLite's
// CURRENT_TIMESTAMP text
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func directionFor(nodeID, sourceID int64) models.Direction {
	if sourceID == nodeID {
		return models.DirectionOut
	}
	return models.DirectionIn
}
