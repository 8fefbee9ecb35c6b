//go:build integration

// Package engine exercises the full write/read path against a real FalkorDB
// instance started through testcontainers.
package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tributarydb/tributary/internal/api"
	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/registry"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/storage"
)

// Harness owns a FalkorDB container and the full stack on top of it. Each
// harness uses its own graph name so tests can share a container-per-test
// model without interference.
type Harness struct {
	t         *testing.T
	container testcontainers.Container

	Client   storage.Client
	Schemas  *schema.Cache
	Registry *registry.Registry
	Service  *api.Service
}

// NewHarness starts a FalkorDB container, prepares the graph, installs the
// test schema, and boots the branch registry. Resources are released through
// t.Cleanup.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "falkordb/falkordb:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
			AutoRemove:   true,
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start FalkorDB container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	config := storage.DefaultClientConfig()
	config.Host = host
	config.Port = port.Int()
	config.GraphName = fmt.Sprintf("test-%s", uuid.NewString()[:8])
	config.DialTimeout = 10 * time.Second

	client := storage.NewClient(config, nil)

	// The port can be open before the graph module answers queries, so the
	// first connect may fail and is retried.
	deadline := time.Now().Add(30 * time.Second)
	for {
		err = client.Connect(ctx)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, err, "FalkorDB not ready")

	require.NoError(t, client.InitializeSchema(ctx))
	_, err = storage.RunMigrations(ctx, client)
	require.NoError(t, err)

	schemas := schema.NewCache()
	schemas.SetBranch(branch.DefaultBranchName, testSnapshot(t))

	reg := registry.New(client, schemas)
	require.NoError(t, reg.Load(ctx))

	h := &Harness{
		t:         t,
		container: container,
		Client:    client,
		Schemas:   schemas,
		Registry:  reg,
		Service:   api.NewService(client, reg, schemas, nil),
	}

	t.Cleanup(func() {
		_ = client.DeleteGraph(ctx)
		_ = client.Close()
		_ = container.Terminate(ctx)
	})
	return h
}

// testSnapshot builds the Device/Site schema the scenarios run against.
func testSnapshot(t *testing.T) *schema.Snapshot {
	t.Helper()
	snapshot, err := schema.NewSnapshot([]*schema.NodeSchema{
		{
			Kind: "Device",
			Attributes: []schema.AttributeSchema{
				{Name: "name", Kind: "Text", Unique: true},
				{Name: "description", Kind: "Text", Optional: true},
				{Name: "nbr_seats", Kind: "Number", Optional: true},
			},
			Relationships: []schema.RelationshipSchema{
				{Name: "site", Peer: "Site", Cardinality: schema.CardinalityOne, Optional: true},
			},
		},
		{
			Kind: "Site",
			Attributes: []schema.AttributeSchema{
				{Name: "name", Kind: "Text", Unique: true},
			},
			Relationships: []schema.RelationshipSchema{
				{Name: "devices", Peer: "Device", Optional: true},
			},
		},
	})
	require.NoError(t, err)
	return snapshot
}
