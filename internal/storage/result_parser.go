package storage

import (
	"fmt"

	"github.com/FalkorDB/falkordb-go/v2"
)

// ParseNodeFromResult extracts node properties from a query result cell.
// The driver returns nodes as falkordb.Node values; fakes in tests hand the
// property map straight through. Nil cells (from OPTIONAL MATCH) parse to an
// empty map.
func ParseNodeFromResult(nodeValue interface{}) (map[string]interface{}, error) {
	if nodeValue == nil {
		return make(map[string]interface{}), nil
	}
	if node, ok := nodeValue.(falkordb.Node); ok {
		return node.Properties, nil
	}
	if node, ok := nodeValue.(*falkordb.Node); ok {
		return node.Properties, nil
	}
	if propsMap, ok := nodeValue.(map[string]interface{}); ok {
		return propsMap, nil
	}
	return nil, fmt.Errorf("unexpected node type: %T", nodeValue)
}

// ParseEdgeFromResult extracts the relation type and properties from a query
// result cell holding an edge. The driver returns edges as falkordb.Edge
// values; fakes in tests hand the property map straight through, with no
// relation type to report.
func ParseEdgeFromResult(edgeValue interface{}) (edgeType string, properties map[string]interface{}, err error) {
	if edge, ok := edgeValue.(falkordb.Edge); ok {
		return edge.Relation, edge.Properties, nil
	}
	if edge, ok := edgeValue.(*falkordb.Edge); ok {
		return edge.Relation, edge.Properties, nil
	}
	if propsMap, ok := edgeValue.(map[string]interface{}); ok {
		return "", propsMap, nil
	}
	return "", nil, fmt.Errorf("unexpected edge type: %T", edgeValue)
}

// GetStringProperty safely extracts a string property.
func GetStringProperty(props map[string]interface{}, key string) string {
	if val, ok := props[key].(string); ok {
		return val
	}
	return ""
}

// GetInt64Property safely extracts an int64 property.
func GetInt64Property(props map[string]interface{}, key string) int64 {
	if val, ok := props[key].(int64); ok {
		return val
	}
	if val, ok := props[key].(float64); ok {
		return int64(val)
	}
	if val, ok := props[key].(int); ok {
		return int64(val)
	}
	return 0
}
