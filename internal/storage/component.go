package storage

import (
	"context"

	"github.com/tributarydb/tributary/internal/logging"
)

// Component runs the storage client under the lifecycle manager. Start
// connects, creates the graph indexes, and applies pending migrations, so
// every component depending on storage sees a fully prepared graph.
type Component struct {
	client Client
	logger *logging.Logger
}

// NewComponent wraps client for lifecycle management.
func NewComponent(client Client) *Component {
	return &Component{
		client: client,
		logger: logging.GetLogger("storage"),
	}
}

// Client returns the managed client.
func (c *Component) Client() Client {
	return c.client
}

// Start connects to FalkorDB and prepares the graph.
func (c *Component) Start(ctx context.Context) error {
	if err := c.client.Connect(ctx); err != nil {
		return err
	}
	if err := c.client.InitializeSchema(ctx); err != nil {
		return err
	}

	applied, err := RunMigrations(ctx, c.client)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		c.logger.InfoWithFields("Graph migrations applied",
			logging.Field("count", len(applied)),
			logging.Field("migrations", applied),
		)
	}
	return nil
}

// Stop closes the connection.
func (c *Component) Stop(ctx context.Context) error {
	return c.client.Close()
}

// Name identifies the component to the lifecycle manager.
func (c *Component) Name() string {
	return "storage"
}
