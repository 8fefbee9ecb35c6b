package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
)

// RootInfo identifies the singleton Root vertex every node hangs off.
type RootInfo struct {
	UUID         string `json:"uuid"`
	GraphVersion string `json:"graphVersion"`
}

// EnsureRoot returns the Root vertex, creating it on a fresh graph. Exactly
// one Root may exist; more than one means the store was corrupted by an
// outside writer and nothing can be trusted.
func EnsureRoot(ctx context.Context, client Client) (*RootInfo, error) {
	result, err := client.ExecuteRead(ctx, &GraphQuery{
		Name:  "root_get",
		Query: "MATCH (root:Root) RETURN root.uuid AS uuid, root.graph_version AS graph_version",
	})
	if err != nil {
		return nil, err
	}

	switch len(result.Rows) {
	case 0:
		return createRoot(ctx, client)
	case 1:
		row := result.Rows[0]
		info := &RootInfo{}
		if len(row) > 0 {
			info.UUID, _ = row[0].(string)
		}
		if len(row) > 1 {
			info.GraphVersion, _ = row[1].(string)
		}
		return info, nil
	default:
		return nil, errdefs.New(errdefs.KindFatal, "Database is corrupted, more than 1 root node initialized")
	}
}

func createRoot(ctx context.Context, client Client) (*RootInfo, error) {
	info := &RootInfo{
		UUID:         uuid.NewString(),
		GraphVersion: CurrentGraphVersion,
	}
	_, err := client.ExecuteWrite(ctx, &GraphQuery{
		Name:  "root_create",
		Query: "CREATE (root:Root {uuid: $uuid, graph_version: $graph_version})",
		Parameters: map[string]interface{}{
			"uuid":          info.UUID,
			"graph_version": info.GraphVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	logging.GetLogger("storage.bootstrap").InfoWithFields("Root node created",
		logging.Field("uuid", info.UUID),
		logging.Field("graph_version", info.GraphVersion),
	)
	return info, nil
}
