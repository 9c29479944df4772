package models

import "time"

// NodeType is the classification of a graph node
type NodeType string

const (
	NodeTypePerson       NodeType = "person"
	NodeTypeOrganization NodeType = "organization"
)

// DefaultRelationshipType is used when a relationship carries no description
const DefaultRelationshipType = "connected"

// DirectConfidence is the weight given to relationships read straight from the source
const DirectConfidence = 1.0

// EntityReference is an entity as described by the external source. Nothing in it
// is trusted.
type EntityReference struct {
	ExternalID  int64  `json:"external_id"`
	DisplayName string `json:"display_name"`
	KindHint    string `json:"kind_hint"`
}

// Node represents a person or organization in the local graph
type Node struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       NodeType  `json:"type"`
	Aliases    []string  `json:"aliases"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// NodeInput carries the fields written by a node upsert
type NodeInput struct {
	Name       string
	Type       NodeType
	ExternalID string
}

// Edge represents a directed relationship between two nodes
type Edge struct {
	ID               int64          `json:"id"`
	SourceNodeID     int64          `json:"source_node_id"`
	TargetNodeID     int64          `json:"target_node_id"`
	RelationshipType string         `json:"relationship_type"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at,omitzero"`
}

// GraphLink is an edge in the shape force-directed renderers expect
type GraphLink struct {
	Source int64 `json:"source"`
	Target int64 `json:"target"`
	Edge
}

// Graph is a full snapshot of the stored graph
type Graph struct {
	Nodes []Node      `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// Direction of an edge relative to the node it was fetched for
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// NeighborEdge is an edge touching a node, annotated with the node on the other end
type NeighborEdge struct {
	Edge
	PeerID    int64     `json:"peer_id"`
	PeerName  string    `json:"peer_name"`
	Direction Direction `json:"direction"`
}

// Neighborhood is a node together with every edge that touches it
type Neighborhood struct {
	Node  Node           `json:"node"`
	Edges []NeighborEdge `json:"edges"`
}

// GraphStats holds simple size counters for the stored graph
type GraphStats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// IngestAck is returned when an ingestion run has been accepted
type IngestAck struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
	RootID int64  `json:"root_id"`
}
