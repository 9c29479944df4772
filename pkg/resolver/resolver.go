// Package resolver turns the entity references handed out by the external source
// into canonical identifiers.
package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/scot00671234/Files-Network-Visualizer/pkg/models"
)

// ErrParse is matched by every reference parsing failure
var ErrParse = errors.New("malformed entity reference")

const (
	idSeparator   = "-"
	nameSeparator = "_"

	// organizationSegment is the path segment the source uses for organizations
	organizationSegment = "org"

	KindPerson       = "Person"
	KindOrganization = "Organization"
)

// ParseError describes why a reference could not be parsed
type ParseError struct {
	Ref    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (ref=%q)", ErrParse, e.Reason, e.Ref)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Resolver maps external identifiers into a single namespace
type Resolver struct {
	namespace string
}

// New creates a resolver for the given source namespace, e.g. "littlesis"
func New(namespace string) *Resolver {
	return &Resolver{namespace: namespace}
}

// Namespace returns the source namespace
func (r *Resolver) Namespace() string {
	return r.namespace
}

// Key returns the namespaced external id used as the node idempotency key
func (r *Resolver) Key(externalID int64) string {
	return r.namespace + ":" + strconv.FormatInt(externalID, 10)
}

// SameEntity reports whether two references point at the same real-world entity.
// Only the external id counts; names and kinds drift between observations.
func SameEntity(a, b models.EntityReference) bool {
	return a.ExternalID == b.ExternalID
}

// ParseReference extracts an entity reference from a source URL of the form
// .../<kind>/<id>-<Name_With_Underscores>.
func ParseReference(raw string) (models.EntityReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.EntityReference{}, &ParseError{Ref: raw, Reason: "empty reference"}
	}

	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")

	parts := strings.Split(path, "/")
	segment := parts[len(parts)-1]

	idx := strings.Index(segment, idSeparator)
	if idx < 0 {
		return models.EntityReference{}, &ParseError{Ref: raw, Reason: "final segment has no separator"}
	}

	id, err := strconv.ParseInt(segment[:idx], 10, 64)
	if err != nil {
		return models.EntityReference{}, &ParseError{Ref: raw, Reason: "id prefix is not an integer"}
	}

	kind := KindPerson
	if len(parts) >= 2 && parts[len(parts)-2] == organizationSegment {
		kind = KindOrganization
	}

	return models.EntityReference{
		ExternalID:  id,
		DisplayName: strings.ReplaceAll(segment[idx+1:], nameSeparator, " "),
		KindHint:    kind,
	}, nil
}
