// Package storage provides the FalkorDB access layer: a pooled client,
// transient-error retries, an optional lineage-aware read cache, query
// metrics, and graph-version migrations. Everything above this package
// speaks GraphQuery/QueryResult and never touches the driver directly.
package storage

import "time"

// GraphQuery is one Cypher statement with parameters. Name labels the query
// in metrics and logs; it never reaches the database.
type GraphQuery struct {
	Name       string                 `json:"name,omitempty"`
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    time.Duration          `json:"timeout,omitempty"`
}

// QueryResult is the parsed outcome of a query.
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Stats   QueryStats      `json:"stats"`
}

// QueryStats carries the mutation counters FalkorDB reports per query.
type QueryStats struct {
	NodesCreated         int           `json:"nodesCreated"`
	NodesDeleted         int           `json:"nodesDeleted"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	RelationshipsDeleted int           `json:"relationshipsDeleted"`
	PropertiesSet        int           `json:"propertiesSet"`
	LabelsAdded          int           `json:"labelsAdded"`
	ExecutionTime        time.Duration `json:"executionTime"`
}

// GraphStats summarizes the stored graph, used by the stats CLI command.
type GraphStats struct {
	NodeCount    int            `json:"nodeCount"`
	EdgeCount    int            `json:"edgeCount"`
	NodesByLabel map[string]int `json:"nodesByLabel"`
	EdgesByType  map[string]int `json:"edgesByType"`
}
