package server_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/cache"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/config"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/graph"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/server"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

const benchNodes = 500

// setupBenchServer creates a server over a star graph of benchNodes nodes.
// With cached set the graph service memoizes responses.
func setupBenchServer(b *testing.B, cached bool) (*httptest.Server, int64) {
	b.Helper()

	tmpDir, err := os.MkdirTemp("", "netgraph-bench-*")
	if err != nil {
		b.Fatal(err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(tmpDir, "bench.db"), storage.SQLiteConfig{
		EnableWAL:   true,
		BusyTimeout: 5000,
	})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	var rootID int64
	for i := 0; i < benchNodes; i++ {
		id, err := store.UpsertNode(ctx, models.NodeInput{
			Name:       fmt.Sprintf("Entity %d", i),
			Type:       models.NodeTypePerson,
			ExternalID: fmt.Sprintf("littlesis:%d", i+1),
		})
		if err != nil {
			b.Fatal(err)
		}
		if i == 0 {
			rootID = id
			continue
		}
		if _, err := store.InsertEdge(ctx, models.Edge{
			SourceNodeID:     rootID,
			TargetNodeID:     id,
			RelationshipType: models.DefaultRelationshipType,
			Confidence:       models.DirectConfidence,
		}); err != nil {
			b.Fatal(err)
		}
	}

	var c cache.Cache
	if cached {
		c = cache.NewMemoryCache(1000, 5*time.Minute)
	}
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	svc := graph.NewService(store, c, 5*time.Minute, logger)
	ing := &fakeIngester{reports: map[string]ingest.Report{}}

	srv := server.New(config.Default(), store, svc, ing, logger)
	ts := httptest.NewServer(srv.Handler())

	b.Cleanup(func() {
		ts.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	return ts, rootID
}

func benchGet(b *testing.B, url string) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := http.Get(url)
			if err != nil {
				b.Error(err)
				return
			}
			resp.Body.Close()
		}
	})
}

// BenchmarkFullGraph benchmarks the full graph endpoint straight from storage
func BenchmarkFullGraph(b *testing.B) {
	ts, _ := setupBenchServer(b, false)
	benchGet(b, ts.URL+"/api/graph")
}

// BenchmarkFullGraphCached benchmarks the full graph endpoint with the memory cache
func BenchmarkFullGraphCached(b *testing.B) {
	ts, _ := setupBenchServer(b, true)
	benchGet(b, ts.URL+"/api/graph")
}

// BenchmarkNodeNeighborhood benchmarks the hub node, which touches every edge
func BenchmarkNodeNeighborhood(b *testing.B) {
	ts, rootID := setupBenchServer(b, false)
	benchGet(b, fmt.Sprintf("%s/api/node/%d", ts.URL, rootID))
}

// BenchmarkGraphStats benchmarks the stats endpoint
func BenchmarkGraphStats(b *testing.B) {
	ts, _ := setupBenchServer(b, false)
	benchGet(b, ts.URL+"/api/graph/stats")
}

// BenchmarkHealthCheck benchmarks the health endpoint
func BenchmarkHealthCheck(b *testing.B) {
	ts, _ := setupBenchServer(b, false)
	benchGet(b, ts.URL+"/health")
}
