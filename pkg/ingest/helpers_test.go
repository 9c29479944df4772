package ingest_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"github.com/stretchr/testify/require"
)

const rootID int64 = 36043

var rootURL = fmt.Sprintf("https://littlesis.org/person/%d-Jeffrey_Epstein", rootID)

// fakeSource serves canned pages and counts calls
type fakeSource struct {
	mu sync.Mutex

	entity    source.Entity
	entityErr error
	pages     map[int]source.RelationshipPage
	pageErrs  map[int]error

	entityCalls int
	pageCalls   []int
}

func newFakeSource(pages ...[]source.Relationship) *fakeSource {
	f := &fakeSource{
		entity:   source.Entity{ID: rootID, Name: "Jeffrey_Epstein", PrimaryExt: "Person"},
		pages:    make(map[int]source.RelationshipPage),
		pageErrs: make(map[int]error),
	}
	for i, rels := range pages {
		f.pages[i+1] = source.RelationshipPage{Relationships: rels, PageCount: len(pages)}
	}
	return f
}

func (f *fakeSource) GetEntity(ctx context.Context, id int64) (source.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entityCalls++

	if err := ctx.Err(); err != nil {
		return source.Entity{}, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	if f.entityErr != nil {
		return source.Entity{}, f.entityErr
	}
	return f.entity, nil
}

func (f *fakeSource) GetRelationships(ctx context.Context, id int64, page int) (source.RelationshipPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls = append(f.pageCalls, page)

	if err := ctx.Err(); err != nil {
		return source.RelationshipPage{}, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, err)
	}
	if err := f.pageErrs[page]; err != nil {
		return source.RelationshipPage{}, err
	}
	p, ok := f.pages[page]
	if !ok {
		return source.RelationshipPage{}, source.ErrEntityNotFound
	}
	return p, nil
}

func (f *fakeSource) pagesFetched() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pageCalls...)
}

// rel builds a root -> other relationship the way the source links it
func rel(id int64, otherID int64, kind string) source.Relationship {
	return source.Relationship{
		ID:          source.ID(fmt.Sprint(id)),
		Description: fmt.Sprintf("relationship %d", id),
		Links: source.Links{
			Entity:  rootURL,
			Related: fmt.Sprintf("https://littlesis.org/%s/%d-Entity_%d", kind, otherID, otherID),
		},
	}
}

func rels(n int) []source.Relationship {
	out := make([]source.Relationship, n)
	for i := range out {
		out[i] = rel(int64(1000+i), int64(i+1), "person")
	}
	return out
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ingest.db"), storage.SQLiteConfig{
		EnableWAL:   true,
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func graphStats(t *testing.T, store storage.GraphStore) models.GraphStats {
	t.Helper()
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	return stats
}

// panicStore blows up when upserting one specific external id
type panicStore struct {
	storage.GraphStore
	externalID string
}

func (p *panicStore) UpsertNode(ctx context.Context, in models.NodeInput) (int64, error) {
	if in.ExternalID == p.externalID {
		panic("boom")
	}
	return p.GraphStore.UpsertNode(ctx, in)
}

// failingStore fails every upsert except the root's
type failingStore struct {
	storage.GraphStore
	allow string
}

func (f *failingStore) UpsertNode(ctx context.Context, in models.NodeInput) (int64, error) {
	if in.ExternalID != f.allow {
		return 0, fmt.Errorf("disk full")
	}
	return f.GraphStore.UpsertNode(ctx, in)
}
