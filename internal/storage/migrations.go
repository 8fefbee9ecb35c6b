package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"

	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
)

// CurrentGraphVersion is stamped on the Root of fresh graphs and advanced by
// RunMigrations on existing ones.
const CurrentGraphVersion = "0.3.0"

// initialGraphVersion is assumed for graphs written before the version
// property existed.
const initialGraphVersion = "0.1.0"

// Migration upgrades stored data in place. Apply must be idempotent: a crash
// between Apply and the version bump reruns it on the next start.
type Migration struct {
	Version string
	Name    string
	Apply   func(ctx context.Context, client Client) error
}

// graphMigrations are ordered by ascending version.
var graphMigrations = []Migration{
	{
		Version: "0.2.0",
		Name:    "backfill-root-identity",
		Apply: func(ctx context.Context, client Client) error {
			_, err := client.ExecuteWrite(ctx, &GraphQuery{
				Name:  "migrate_root_identity",
				Query: "MATCH (root:Root) WHERE root.uuid IS NULL SET root.uuid = $uuid",
				Parameters: map[string]interface{}{
					"uuid": newMigrationUUID(),
				},
			})
			return err
		},
	},
	{
		Version: "0.3.0",
		Name:    "backfill-edge-branch-level",
		Apply: func(ctx context.Context, client Client) error {
			_, err := client.ExecuteWrite(ctx, &GraphQuery{
				Name: "migrate_edge_branch_level",
				Query: "MATCH ()-[r]-() WHERE r.branch IS NOT NULL AND r.branch_level IS NULL " +
					"SET r.branch_level = CASE WHEN r.branch = $default_branch THEN 1 ELSE 2 END",
				Parameters: map[string]interface{}{
					"default_branch": "main",
				},
			})
			return err
		},
	},
}

// Migrations returns the registered migrations in apply order.
func Migrations() []Migration {
	out := make([]Migration, len(graphMigrations))
	copy(out, graphMigrations)
	return out
}

// RunMigrations brings the graph up to CurrentGraphVersion and returns the
// names of the migrations it applied.
func RunMigrations(ctx context.Context, client Client) ([]string, error) {
	logger := logging.GetLogger("storage.migrations")

	root, err := EnsureRoot(ctx, client)
	if err != nil {
		return nil, err
	}

	currentStr := root.GraphVersion
	if currentStr == "" {
		currentStr = initialGraphVersion
	}
	current, err := version.NewVersion(currentStr)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.KindFatal, err, "stored graph version %q is not parseable", currentStr)
	}

	var applied []string
	for _, migration := range graphMigrations {
		target, err := version.NewVersion(migration.Version)
		if err != nil {
			return nil, errdefs.Wrapf(errdefs.KindFatal, err, "migration %s declares invalid version %q", migration.Name, migration.Version)
		}
		if target.LessThanOrEqual(current) {
			continue
		}

		logger.InfoWithFields("Applying migration",
			logging.Field("name", migration.Name),
			logging.Field("from", current.String()),
			logging.Field("to", target.String()),
		)
		if err := migration.Apply(ctx, client); err != nil {
			return applied, errdefs.Wrapf(errdefs.KindFatal, err, "migration %s failed", migration.Name)
		}

		_, err = client.ExecuteWrite(ctx, &GraphQuery{
			Name:  "migrate_set_version",
			Query: "MATCH (root:Root) SET root.graph_version = $graph_version",
			Parameters: map[string]interface{}{
				"graph_version": migration.Version,
			},
		})
		if err != nil {
			return applied, err
		}
		current = target
		applied = append(applied, migration.Name)
	}

	return applied, nil
}

var newMigrationUUID = uuid.NewString
