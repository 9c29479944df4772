// Package source reads entities and their relationships from the remote
// entity-graph API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSourceUnavailable covers network errors, 5xx/429 responses and bodies that do not decode
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEntityNotFound is returned when the source answers 404
	ErrEntityNotFound = errors.New("entity not found at source")
)

// EntitySource is the read side of the remote API the crawler depends on
type EntitySource interface {
	GetEntity(ctx context.Context, id int64) (Entity, error)
	GetRelationships(ctx context.Context, id int64, page int) (RelationshipPage, error)
}

// Entity is the root entity as returned by GET /entities/{id}
type Entity struct {
	ID         int64
	Name       string
	PrimaryExt string
}

// RelationshipPage is one page of GET /entities/{id}/relationships
type RelationshipPage struct {
	Relationships []Relationship
	PageCount     int
}

// Relationship is a single relationship record. Links hold entity URLs.
type Relationship struct {
	ID           ID
	Description  string
	Description1 string
	Links        Links
}

// Links carries the endpoint URLs of a relationship. Newer payloads use
// entity/related, older ones entity1/entity2.
type Links struct {
	Entity  string `json:"entity"`
	Related string `json:"related"`
	Entity1 string `json:"entity1"`
	Entity2 string `json:"entity2"`
}

// Endpoints returns the two endpoint references, preferring entity/related
func (r Relationship) Endpoints() (first, second string) {
	first, second = r.Links.Entity, r.Links.Related
	if first == "" {
		first = r.Links.Entity1
	}
	if second == "" {
		second = r.Links.Entity2
	}
	return strings.TrimSpace(first), strings.TrimSpace(second)
}

// Label returns the relationship description, empty when none was given
func (r Relationship) Label() string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	return strings.TrimSpace(r.Description1)
}

// ID is an identifier that may be encoded as a JSON number or string
type ID string

// UnmarshalJSON accepts 123, "123" and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither number nor string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Int64 parses the identifier as an integer
func (id ID) Int64() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

func (id ID) String() string { return string(id) }
