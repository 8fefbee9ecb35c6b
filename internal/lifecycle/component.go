// Package lifecycle orchestrates the startup and shutdown of the server's
// long-lived components: storage client, branch registry, schema loader,
// event pipeline, and API server.
package lifecycle

import "context"

// Component is anything the Manager can start and stop.
type Component interface {
	// Start brings the component up. The context can carry a startup
	// deadline; a component that cannot become ready must return an error
	// rather than limp along.
	Start(ctx context.Context) error

	// Stop shuts the component down, finishing in-flight work within the
	// context deadline.
	Stop(ctx context.Context) error

	// Name identifies the component in logs and dependency declarations.
	Name() string
}
