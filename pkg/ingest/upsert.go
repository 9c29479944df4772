// Package ingest crawls an entity's relationships from the remote source and
// folds them into the local graph store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

// ErrResolutionMiss is returned when an endpoint has no local node after its upsert
var ErrResolutionMiss = errors.New("endpoint did not resolve to a local node")

// Classify maps a source kind hint to a node type. The hint is free text, so this
// is a heuristic: anything mentioning org or business is an organization.
func Classify(kindHint string) models.NodeType {
	hint := strings.ToLower(kindHint)
	if strings.Contains(hint, "org") || strings.Contains(hint, "business") {
		return models.NodeTypeOrganization
	}
	return models.NodeTypePerson
}

// CleanName replaces the source's word separator with spaces
func CleanName(raw string) string {
	return strings.ReplaceAll(raw, "_", " ")
}

// Upserter persists entities as nodes, keyed by namespaced external id
type Upserter struct {
	store    storage.GraphStore
	resolver *resolver.Resolver
	logger   zerolog.Logger
}

// NewUpserter creates a node upsert service
func NewUpserter(store storage.GraphStore, res *resolver.Resolver, logger zerolog.Logger) *Upserter {
	return &Upserter{store: store, resolver: res, logger: logger}
}

// Upsert creates or refreshes the node for an external entity and returns its
// local id. Empty names are stored as given.
func (u *Upserter) Upsert(ctx context.Context, externalID int64, rawName, kindHint string) (int64, error) {
	in := models.NodeInput{
		Name:       CleanName(rawName),
		Type:       Classify(kindHint),
		ExternalID: u.resolver.Key(externalID),
	}

	id, err := u.store.UpsertNode(ctx, in)
	if err != nil {
		if !errors.Is(err, storage.ErrStorageFailure) {
			err = fmt.Errorf("%w: %v", storage.ErrStorageFailure, err)
		}
		return 0, err
	}

	u.logger.Debug().
		Str("external_id", in.ExternalID).
		Str("name", in.Name).
		Str("type", string(in.Type)).
		Int64("node_id", id).
		Msg("node upserted")

	return id, nil
}
