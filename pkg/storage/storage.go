package storage

import (
	"context"
	"errors"

	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
)

var (
	// ErrNotFound is returned when a node is not found
	ErrNotFound = errors.New("node not found")
	// ErrDuplicateEdge is returned when an edge with the same ordered endpoints exists
	ErrDuplicateEdge = errors.New("edge already exists")
	// ErrStorageFailure wraps write failures reported by the backend
	ErrStorageFailure = errors.New("storage failure")
)

// GraphStore defines the interface for node/edge storage backends.
//
// Nodes are keyed by external id: UpsertNode inserts on first sight and updates
// name and type afterwards. Edges are keyed by their ordered (source, target) pair.
type GraphStore interface {
	// Write operations
	UpsertNode(ctx context.Context, in models.NodeInput) (int64, error)
	InsertEdge(ctx context.Context, e models.Edge) (int64, error)

	// Lookups
	NodeIDByExternalID(ctx context.Context, externalID string) (int64, error)
	GetNode(ctx context.Context, id int64) (models.Node, error)
	EdgeExists(ctx context.Context, sourceID, targetID int64) (bool, error)

	// Read side
	ListNodes(ctx context.Context) ([]models.Node, error)
	ListEdges(ctx context.Context) ([]models.Edge, error)
	EdgesForNode(ctx context.Context, id int64) ([]models.NeighborEdge, error)
	Stats(ctx context.Context) (models.GraphStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// StoreInfo provides metadata about the store implementation
type StoreInfo struct {
	Type    string // "sqlite", "postgres"
	Version string
	Target  string // file path or redacted connection target
}

// InfoProvider allows stores to provide metadata about their capabilities
type InfoProvider interface {
	Info() StoreInfo
}
