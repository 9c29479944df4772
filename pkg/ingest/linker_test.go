package ingest_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinker(t *testing.T, store storage.GraphStore, seedRoot bool) *ingest.Linker {
	t.Helper()
	res := resolver.New("littlesis")
	u := ingest.NewUpserter(store, res, zerolog.Nop())
	if seedRoot {
		_, err := u.Upsert(context.Background(), rootID, "Jeffrey_Epstein", "Person")
		require.NoError(t, err)
	}
	return ingest.NewLinker(store, res, u, zerolog.Nop())
}

func TestLinker_Link(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, true)
	ctx := context.Background()

	res := linker.Link(ctx, rootID, rel(101, 55, "org"))
	require.Equal(t, ingest.OutcomeLinked, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, int64(55), res.OtherExternalID)
	assert.Greater(t, res.EdgeID, int64(0))

	rootNode, err := store.NodeIDByExternalID(ctx, "littlesis:36043")
	require.NoError(t, err)
	otherNode, err := store.NodeIDByExternalID(ctx, "littlesis:55")
	require.NoError(t, err)

	node, err := store.GetNode(ctx, otherNode)
	require.NoError(t, err)
	assert.Equal(t, "Entity 55", node.Name)
	assert.Equal(t, models.NodeTypeOrganization, node.Type)

	edges, err := store.ListEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, rootNode, edges[0].SourceNodeID)
	assert.Equal(t, otherNode, edges[0].TargetNodeID)
	assert.Equal(t, "relationship 101", edges[0].RelationshipType)
	assert.Equal(t, models.DirectConfidence, edges[0].Confidence)
	assert.Equal(t, json.Number("101"), edges[0].Metadata["littlesis_id"])
}

func TestLinker_RootAsSecondEndpoint(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, true)

	r := source.Relationship{
		ID: "7",
		Links: source.Links{
			Entity1: "https://littlesis.org/person/7-Jane_Doe",
			Entity2: rootURL,
		},
	}
	res := linker.Link(context.Background(), rootID, r)
	require.Equal(t, ingest.OutcomeLinked, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, int64(7), res.OtherExternalID)

	edges, err := store.ListEdges(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, models.DefaultRelationshipType, edges[0].RelationshipType)
}

func TestLinker_Skips(t *testing.T) {
	tests := []struct {
		name string
		rel  source.Relationship
		want ingest.SkipReason
	}{
		{
			name: "missing related link",
			rel:  source.Relationship{ID: "1", Links: source.Links{Entity: rootURL}},
			want: ingest.ReasonMissingEndpoint,
		},
		{
			name: "no links at all",
			rel:  source.Relationship{ID: "2"},
			want: ingest.ReasonMissingEndpoint,
		},
		{
			name: "malformed reference",
			rel:  source.Relationship{ID: "3", Links: source.Links{Entity: rootURL, Related: "https://littlesis.org/person/Nobody"}},
			want: ingest.ReasonParseError,
		},
		{
			name: "self reference",
			rel:  source.Relationship{ID: "4", Links: source.Links{Entity: rootURL, Related: rootURL}},
			want: ingest.ReasonSelfReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			linker := newTestLinker(t, store, true)

			res := linker.Link(context.Background(), rootID, tt.rel)
			assert.Equal(t, ingest.OutcomeSkipped, res.Outcome)
			assert.Equal(t, tt.want, res.Reason)

			stats := graphStats(t, store)
			assert.Equal(t, 1, stats.NodeCount, "only the root node")
			assert.Equal(t, 0, stats.EdgeCount)
		})
	}
}

func TestLinker_ParseErrorWrapsErrParse(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, true)

	res := linker.Link(context.Background(), rootID, source.Relationship{
		Links: source.Links{Entity: "https://littlesis.org/person/x-Bad", Related: rootURL},
	})
	assert.Equal(t, ingest.ReasonParseError, res.Reason)
	assert.ErrorIs(t, res.Err, resolver.ErrParse)
}

func TestLinker_Duplicate(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, true)
	ctx := context.Background()

	first := linker.Link(ctx, rootID, rel(1, 55, "person"))
	require.Equal(t, ingest.OutcomeLinked, first.Outcome)

	// a different relationship between the same pair is still a duplicate edge
	second := linker.Link(ctx, rootID, rel(2, 55, "person"))
	assert.Equal(t, ingest.OutcomeSkipped, second.Outcome)
	assert.Equal(t, ingest.ReasonDuplicate, second.Reason)
	assert.NoError(t, second.Err)

	assert.Equal(t, 1, graphStats(t, store).EdgeCount)
}

func TestLinker_ReversePairIsDistinct(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, true)
	ctx := context.Background()

	require.Equal(t, ingest.OutcomeLinked, linker.Link(ctx, rootID, rel(1, 55, "person")).Outcome)

	// crawling from 55 sees the same relationship with the roles swapped
	reverse := source.Relationship{
		ID: "1",
		Links: source.Links{
			Entity:  "https://littlesis.org/person/55-Entity_55",
			Related: rootURL,
		},
	}
	res := linker.Link(ctx, 55, reverse)
	require.Equal(t, ingest.OutcomeLinked, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, rootID, res.OtherExternalID)
	assert.Equal(t, 2, graphStats(t, store).EdgeCount)
}

func TestLinker_ResolutionMiss(t *testing.T) {
	store := newTestStore(t)
	linker := newTestLinker(t, store, false)

	res := linker.Link(context.Background(), rootID, rel(1, 55, "person"))
	assert.Equal(t, ingest.OutcomeSkipped, res.Outcome)
	assert.Equal(t, ingest.ReasonResolutionMiss, res.Reason)
	assert.ErrorIs(t, res.Err, ingest.ErrResolutionMiss)
	assert.Equal(t, 0, graphStats(t, store).EdgeCount)
}

func TestLinker_StorageFailure(t *testing.T) {
	inner := newTestStore(t)
	store := &failingStore{GraphStore: inner, allow: "littlesis:36043"}
	linker := newTestLinker(t, store, true)

	res := linker.Link(context.Background(), rootID, rel(1, 55, "person"))
	assert.Equal(t, ingest.ReasonStorageFailure, res.Reason)
	assert.ErrorIs(t, res.Err, storage.ErrStorageFailure)
	assert.Equal(t, 0, graphStats(t, inner).EdgeCount)
}
