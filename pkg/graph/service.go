// Package graph serves read-only views of the stored graph.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/cache"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/ingest"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "graph:"
	keyFull   = keyPrefix + "full"
	keyStats  = keyPrefix + "stats"

	loadTimeout = 30 * time.Second
)

func nodeKey(id int64) string {
	return keyPrefix + "node:" + strconv.FormatInt(id, 10)
}

// Service answers graph queries from the store, caching encoded results
type Service struct {
	store  storage.GraphStore
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
	group  singleflight.Group
	gen    atomic.Uint64
}

// NewService creates a query service. A nil c or a ttl <= 0 disables caching.
func NewService(store storage.GraphStore, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		c = nil
	}
	return &Service{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// GetFullGraph returns every node and every edge
func (s *Service) GetFullGraph(ctx context.Context) (models.Graph, error) {
	var g models.Graph
	err := s.cached(ctx, keyFull, &g, func(ctx context.Context) (any, error) {
		return s.loadFullGraph(ctx)
	})
	return g, err
}

func (s *Service) loadFullGraph(ctx context.Context) (models.Graph, error) {
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return models.Graph{}, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := s.store.ListEdges(ctx)
	if err != nil {
		return models.Graph{}, fmt.Errorf("list edges: %w", err)
	}

	links := make([]models.GraphLink, 0, len(edges))
	for _, e := range edges {
		links = append(links, models.GraphLink{
			Source: e.SourceNodeID,
			Target: e.TargetNodeID,
			Edge:   e,
		})
	}

	return models.Graph{Nodes: nodes, Links: links}, nil
}

// GetNodeNeighborhood returns a node with every edge touching it, in either
// direction. storage.ErrNotFound is returned for unknown ids.
func (s *Service) GetNodeNeighborhood(ctx context.Context, id int64) (models.Neighborhood, error) {
	var n models.Neighborhood
	err := s.cached(ctx, nodeKey(id), &n, func(ctx context.Context) (any, error) {
		node, err := s.store.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		edges, err := s.store.EdgesForNode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("edges for node %d: %w", id, err)
		}
		return models.Neighborhood{Node: node, Edges: edges}, nil
	})
	return n, err
}

// Stats returns node and edge counts
func (s *Service) Stats(ctx context.Context) (models.GraphStats, error) {
	var st models.GraphStats
	err := s.cached(ctx, keyStats, &st, func(ctx context.Context) (any, error) {
		return s.store.Stats(ctx)
	})
	return st, err
}

// Invalidate drops every cached graph view
func (s *Service) Invalidate(ctx context.Context) error {
	s.gen.Add(1)
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePrefix(ctx, keyPrefix)
}

// IngestFinished invalidates cached views once a run has written new data
func (s *Service) IngestFinished(ctx context.Context, report ingest.Report) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to invalidate graph cache")
		return
	}
	s.logger.Debug().Str("run_id", report.RunID).Msg("graph cache invalidated")
}

// cached decodes key into out, or runs load once across concurrent callers,
// stores the encoded result and decodes it into out. A load that overlaps an
// Invalidate is returned to its callers but never written back.
func (s *Service) cached(ctx context.Context, key string, out any, load func(context.Context) (any, error)) error {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, key)
		if err == nil {
			if err := decode(data, out); err == nil {
				return nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
	}

	gen := s.gen.Load()
	flight := key + "@" + strconv.FormatUint(gen, 10)

	// the shared load outlives any single caller
	base := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flight, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(base, loadTimeout)
		defer cancel()

		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		s.fill(loadCtx, key, gen, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return decode(res.Val.([]byte), out)
	}
}

// fill writes data under key unless an Invalidate has happened since gen was read
func (s *Service) fill(ctx context.Context, key string, gen uint64, data []byte) {
	if s.cache == nil || s.gen.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	// Invalidate may have bumped the generation between the check and the write
	if s.gen.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		}
	}
}

// decode keeps metadata numbers as json.Number so large ids survive the cache
func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
