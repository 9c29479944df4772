package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/resolver"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/source"
	"github.com/scot00671234/Files-Network-Visualizer/pkg/storage"
)

// Outcome of linking one relationship
type Outcome string

const (
	OutcomeLinked  Outcome = "linked"
	OutcomeSkipped Outcome = "skipped"
)

// SkipReason says why a relationship produced no edge
type SkipReason string

const (
	ReasonMissingEndpoint SkipReason = "missing_endpoint"
	ReasonParseError      SkipReason = "parse_error"
	ReasonSelfReference   SkipReason = "self_reference"
	ReasonStorageFailure  SkipReason = "storage_failure"
	ReasonResolutionMiss  SkipReason = "resolution_miss"
	ReasonDuplicate       SkipReason = "duplicate"
	ReasonInternal        SkipReason = "internal_error"
)

// LinkResult is the outcome of one Link call
type LinkResult struct {
	Outcome Outcome
	Reason  SkipReason
	EdgeID  int64
	// OtherExternalID is the non-root endpoint, zero if parsing never got that far
	OtherExternalID int64
	Err             error
}

func skipped(reason SkipReason, err error) LinkResult {
	return LinkResult{Outcome: OutcomeSkipped, Reason: reason, Err: err}
}

// Linker turns a source relationship into at most one stored edge
type Linker struct {
	store    storage.GraphStore
	resolver *resolver.Resolver
	upserter *Upserter
	logger   zerolog.Logger

	// guards the exists-check and insert pair
	mu sync.Mutex
}

// NewLinker creates a relationship linker
func NewLinker(store storage.GraphStore, res *resolver.Resolver, upserter *Upserter, logger zerolog.Logger) *Linker {
	return &Linker{
		store:    store,
		resolver: res,
		upserter: upserter,
		logger:   logger,
	}
}

// Link resolves both endpoints of rel, upserts the one that is not the root and
// stores a root -> other edge unless that ordered pair already exists.
func (l *Linker) Link(ctx context.Context, rootExternalID int64, rel source.Relationship) LinkResult {
	rawA, rawB := rel.Endpoints()
	if rawA == "" || rawB == "" {
		return skipped(ReasonMissingEndpoint, fmt.Errorf("relationship %s: missing endpoint link", rel.ID))
	}

	refA, err := resolver.ParseReference(rawA)
	if err != nil {
		return skipped(ReasonParseError, err)
	}
	refB, err := resolver.ParseReference(rawB)
	if err != nil {
		return skipped(ReasonParseError, err)
	}

	var other models.EntityReference
	switch {
	case refA.ExternalID != rootExternalID:
		other = refA
	case refB.ExternalID != rootExternalID:
		other = refB
	default:
		return skipped(ReasonSelfReference, nil)
	}

	otherID, err := l.upserter.Upsert(ctx, other.ExternalID, other.DisplayName, other.KindHint)
	if err != nil {
		res := skipped(ReasonStorageFailure, err)
		res.OtherExternalID = other.ExternalID
		return res
	}

	rootID, err := l.store.NodeIDByExternalID(ctx, l.resolver.Key(rootExternalID))
	if err != nil {
		reason := ReasonStorageFailure
		if errors.Is(err, storage.ErrNotFound) {
			reason = ReasonResolutionMiss
			err = fmt.Errorf("%w: %s", ErrResolutionMiss, l.resolver.Key(rootExternalID))
		}
		res := skipped(reason, err)
		res.OtherExternalID = other.ExternalID
		return res
	}

	edgeID, reason, err := l.insertOnce(ctx, rootID, otherID, rel)
	if reason != "" {
		res := skipped(reason, err)
		res.OtherExternalID = other.ExternalID
		return res
	}

	return LinkResult{Outcome: OutcomeLinked, EdgeID: edgeID, OtherExternalID: other.ExternalID}
}

func (l *Linker) insertOnce(ctx context.Context, rootID, otherID int64, rel source.Relationship) (int64, SkipReason, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := l.store.EdgeExists(ctx, rootID, otherID)
	if err != nil {
		return 0, ReasonStorageFailure, err
	}
	if exists {
		return 0, ReasonDuplicate, nil
	}

	relType := rel.Label()
	if relType == "" {
		relType = models.DefaultRelationshipType
	}

	edgeID, err := l.store.InsertEdge(ctx, models.Edge{
		SourceNodeID:     rootID,
		TargetNodeID:     otherID,
		RelationshipType: relType,
		Confidence:       models.DirectConfidence,
		Metadata:         map[string]any{l.resolver.Namespace() + "_id": relationshipIDValue(rel.ID)},
	})
	switch {
	case errors.Is(err, storage.ErrDuplicateEdge):
		return 0, ReasonDuplicate, nil
	case err != nil:
		return 0, ReasonStorageFailure, err
	}
	return edgeID, "", nil
}

// relationshipIDValue keeps numeric ids numeric in edge metadata
func relationshipIDValue(id source.ID) any {
	if n, err := id.Int64(); err == nil {
		return n
	}
	return id.String()
}
