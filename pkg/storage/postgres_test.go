package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Postgres tests run against a real server and share its tables, so every
// test namespaces its external ids with a fresh uuid.
func setupPostgresTest(t *testing.T) (storage.GraphStore, string) {
	t.Helper()

	url := os.Getenv("NETGRAPH_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("NETGRAPH_TEST_POSTGRES_URL not set")
	}

	store, err := storage.NewStore("postgres", map[string]interface{}{"database_url": url})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, "test-" + uuid.NewString()
}

func TestPostgresStore_UpsertAndAliases(t *testing.T) {
	store, ns := setupPostgresTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ext := ns + ":55"
	id1, err := store.UpsertNode(ctx, models.NodeInput{Name: "Acme", Type: models.NodeTypePerson, ExternalID: ext})
	require.NoError(t, err)
	id2, err := store.UpsertNode(ctx, models.NodeInput{Name: "Acme Corp", Type: models.NodeTypeOrganization, ExternalID: ext})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	node, err := store.GetNode(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", node.Name)
	assert.Equal(t, models.NodeTypeOrganization, node.Type)
	assert.Equal(t, []string{"Acme", "Acme Corp"}, node.Aliases)

	got, err := store.NodeIDByExternalID(ctx, ext)
	require.NoError(t, err)
	assert.Equal(t, id1, got)

	_, err = store.NodeIDByExternalID(ctx, ns+":missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresStore_EdgesAndNeighborhood(t *testing.T) {
	store, ns := setupPostgresTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids := make([]int64, 3)
	for i := range ids {
		id, err := store.UpsertNode(ctx, models.NodeInput{
			Name: fmt.Sprintf("N%d", i), Type: models.NodeTypePerson, ExternalID: fmt.Sprintf("%s:%d", ns, i),
		})
		require.NoError(t, err)
		ids[i] = id
	}

	_, err := store.InsertEdge(ctx, models.Edge{SourceNodeID: ids[0], TargetNodeID: ids[1], RelationshipType: "connected", Confidence: 1})
	require.NoError(t, err)
	_, err = store.InsertEdge(ctx, models.Edge{SourceNodeID: ids[0], TargetNodeID: ids[1], RelationshipType: "connected", Confidence: 1})
	assert.ErrorIs(t, err, storage.ErrDuplicateEdge)
	_, err = store.InsertEdge(ctx, models.Edge{
		SourceNodeID: ids[2], TargetNodeID: ids[0], RelationshipType: "donor", Confidence: 1,
		Metadata: map[string]any{"source_relationship_id": "9"},
	})
	require.NoError(t, err)

	edges, err := store.EdgesForNode(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, models.DirectionOut, edges[0].Direction)
	assert.Equal(t, "N1", edges[0].PeerName)
	assert.Equal(t, models.DirectionIn, edges[1].Direction)
	assert.Equal(t, "9", edges[1].Metadata["source_relationship_id"])

	exists, err := store.EdgeExists(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.False(t, exists)
}
