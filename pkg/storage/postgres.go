package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
)

// PostgresStore implements GraphStore on PostgreSQL through a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	target string
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	MaxConns       int32
	ConnectTimeout time.Duration
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS nodes (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('person', 'organization')),
		aliases TEXT[] NOT NULL DEFAULT '{}',
		external_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS edges (
		id BIGSERIAL PRIMARY KEY,
		source_node_id BIGINT NOT NULL REFERENCES nodes(id),
		target_node_id BIGINT NOT NULL REFERENCES nodes(id),
		relationship_type TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (source_node_id, target_node_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_node_id);
`

// NewPostgresStore connects to PostgreSQL and creates the schema
func NewPostgresStore(ctx context.Context, databaseURL string, config PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		target: fmt.Sprintf("%s:%d/%s", poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, poolConfig.ConnConfig.Database),
	}, nil
}

// Info returns store information
func (s *PostgresStore) Info() StoreInfo {
	return StoreInfo{
		Type:    "postgres",
		Version: "1.0.0",
		Target:  s.target,
	}
}

// UpsertNode inserts or refreshes a node keyed by external id
func (s *PostgresStore) UpsertNode(ctx context.Context, in models.NodeInput) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO nodes (name, type, aliases, external_id)
		VALUES ($1, $2, ARRAY[$1::text], $3)
		ON CONFLICT (external_id) DO UPDATE SET
			aliases = CASE
				WHEN nodes.name <> EXCLUDED.name AND NOT (EXCLUDED.name = ANY(nodes.aliases))
				THEN array_append(nodes.aliases, EXCLUDED.name)
				ELSE nodes.aliases
			END,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			updated_at = now()
		RETURNING id
	`, in.Name, string(in.Type), in.ExternalID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: upsert node %s: %v", ErrStorageFailure, in.ExternalID, err)
	}
	return id, nil
}

// NodeIDByExternalID resolves an external id to the local node id
func (s *PostgresStore) NodeIDByExternalID(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, "SELECT id FROM nodes WHERE external_id = $1", externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query node: %w", err)
	}
	return id, nil
}

// GetNode retrieves a node by local id
func (s *PostgresStore) GetNode(ctx context.Context, id int64) (models.Node, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, type, aliases, external_id, created_at, updated_at
		FROM nodes WHERE id = $1
	`, id)

	node, err := scanPostgresNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("failed to query node: %w", err)
	}
	return node, nil
}

// EdgeExists reports whether an edge with exactly this ordered pair is stored
func (s *PostgresStore) EdgeExists(ctx context.Context, sourceID, targetID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM edges WHERE source_node_id = $1 AND target_node_id = $2)
	`, sourceID, targetID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query edge: %w", err)
	}
	return exists, nil
}

// InsertEdge stores a new edge, returning ErrDuplicateEdge on a repeated pair
func (s *PostgresStore) InsertEdge(ctx context.Context, e models.Edge) (int64, error) {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO edges (source_node_id, target_node_id, relationship_type, confidence, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (source_node_id, target_node_id) DO NOTHING
		RETURNING id
	`, e.SourceNodeID, e.TargetNodeID, e.RelationshipType, e.Confidence, metadata).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicateEdge
	}
	if err != nil {
		return 0, fmt.Errorf("%w: insert edge %d->%d: %v", ErrStorageFailure, e.SourceNodeID, e.TargetNodeID, err)
	}
	return id, nil
}

// ListNodes returns every node ordered by id
func (s *PostgresStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, aliases, external_id, created_at, updated_at
		FROM nodes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.Node{}
	for rows.Next() {
		node, err := scanPostgresNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// ListEdges returns every edge ordered by id
func (s *PostgresStore) ListEdges(ctx context.Context) ([]models.Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_node_id, target_node_id, relationship_type, confidence, metadata::text, created_at
		FROM edges ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []models.Edge{}
	for rows.Next() {
		var (
			e        models.Edge
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &e.RelationshipType,
			&e.Confidence, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Metadata = unmarshalMetadata(metadata)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesForNode returns the union of outbound and inbound edges of a node
func (s *PostgresStore) EdgesForNode(ctx context.Context, id int64) ([]models.NeighborEdge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.source_node_id, e.target_node_id, e.relationship_type,
		       e.confidence, e.metadata::text, e.created_at, n.id, n.name
		FROM edges e
		JOIN nodes n ON n.id = CASE WHEN e.source_node_id = $1 THEN e.target_node_id ELSE e.source_node_id END
		WHERE e.source_node_id = $1 OR e.target_node_id = $1
		ORDER BY e.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	edges := []models.NeighborEdge{}
	for rows.Next() {
		var (
			ne       models.NeighborEdge
			metadata string
		)
		if err := rows.Scan(&ne.ID, &ne.SourceNodeID, &ne.TargetNodeID, &ne.RelationshipType,
			&ne.Confidence, &metadata, &ne.CreatedAt, &ne.PeerID, &ne.PeerName); err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		ne.Metadata = unmarshalMetadata(metadata)
		ne.Direction = directionFor(id, ne.SourceNodeID)
		edges = append(edges, ne)
	}
	return edges, rows.Err()
}

// Stats returns node and edge counts
func (s *PostgresStore) Stats(ctx context.Context) (models.GraphStats, error) {
	var nodes, edges int64
	err := s.pool.QueryRow(ctx,
		"SELECT (SELECT COUNT(*) FROM nodes), (SELECT COUNT(*) FROM edges)").Scan(&nodes, &edges)
	if err != nil {
		return models.GraphStats{}, fmt.Errorf("failed to count graph: %w", err)
	}
	return models.GraphStats{NodeCount: int(nodes), EdgeCount: int(edges)}, nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresNode(row pgx.Row) (models.Node, error) {
	var (
		node     models.Node
		nodeType string
	)
	if err := row.Scan(&node.ID, &node.Name, &nodeType, &node.Aliases, &node.ExternalID,
		&node.CreatedAt, &node.UpdatedAt); err != nil {
		return models.Node{}, err
	}
	node.Type = models.NodeType(nodeType)
	if node.Aliases == nil {
		node.Aliases = []string{}
	}
	return node, nil
}
