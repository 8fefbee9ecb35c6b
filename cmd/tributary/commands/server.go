package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tributarydb/tributary/internal/api"
	"github.com/tributarydb/tributary/internal/apiserver"
	"github.com/tributarydb/tributary/internal/config"
	"github.com/tributarydb/tributary/internal/core/registry"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/events"
	"github.com/tributarydb/tributary/internal/lifecycle"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/schemafile"
	"github.com/tributarydb/tributary/internal/storage"
	"github.com/tributarydb/tributary/internal/tracing"
)

var (
	configPath string
	apiPort    int
	// Storage flags
	storageHost  string
	storagePort  int
	storageGraph string
	// Schema flags
	schemaDir   string
	schemaWatch bool
	// Tracing flags
	tracingEnabled     bool
	tracingEndpoint    string
	tracingTLSCAPath   string
	tracingTLSInsecure bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Tributary server",
	Long: `Start the Tributary server: connects to FalkorDB, boots the branch
registry, loads the node schema, and serves the HTTP API.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML configuration file (optional)")
	serverCmd.Flags().IntVar(&apiPort, "port", 8080, "Port the API server listens on")
	serverCmd.Flags().StringVar(&storageHost, "storage-host", "localhost", "FalkorDB host")
	serverCmd.Flags().IntVar(&storagePort, "storage-port", 6379, "FalkorDB port")
	serverCmd.Flags().StringVar(&storageGraph, "storage-graph", "tributary", "FalkorDB graph name")
	serverCmd.Flags().StringVar(&schemaDir, "schema-dir", "schemas", "Directory containing node schema YAML files")
	serverCmd.Flags().BoolVar(&schemaWatch, "schema-watch", false, "Reload the schema directory on changes")
	serverCmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing (default: false)")
	serverCmd.Flags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., otel-collector:4317)")
	serverCmd.Flags().StringVar(&tracingTLSCAPath, "tracing-tls-ca", "", "Path to CA certificate for TLS verification (optional)")
	serverCmd.Flags().BoolVar(&tracingTLSInsecure, "tracing-tls-insecure", false, "Skip TLS certificate verification (insecure, use only for testing)")
}

// applyServerFlags lays explicitly set flags over the loaded configuration.
// Flags beat both the file and TRIBUTARY_* environment overrides.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = apiPort
	}
	if flags.Changed("storage-host") {
		cfg.Storage.Host = storageHost
	}
	if flags.Changed("storage-port") {
		cfg.Storage.Port = storagePort
	}
	if flags.Changed("storage-graph") {
		cfg.Storage.GraphName = storageGraph
	}
	if flags.Changed("schema-dir") {
		cfg.Schema.Dir = schemaDir
	}
	if flags.Changed("schema-watch") {
		cfg.Schema.Watch = schemaWatch
	}
	if flags.Changed("tracing-enabled") {
		cfg.Tracing.Enabled = tracingEnabled
	}
	if flags.Changed("tracing-endpoint") {
		cfg.Tracing.Endpoint = tracingEndpoint
	}
	if flags.Changed("tracing-tls-ca") {
		cfg.Tracing.TLSCAPath = tracingTLSCAPath
	}
	if flags.Changed("tracing-tls-insecure") {
		cfg.Tracing.TLSInsecure = tracingTLSInsecure
	}
}

func runServer(cmd *cobra.Command, args []string) {
	// Load configuration: defaults, file, environment, then flags
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "Configuration error")
	}
	applyServerFlags(cmd, cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		HandleError(err, "Configuration error")
	}

	// Setup logging; an explicit --log-level beats the configured level
	levelFlags := logLevelFlags
	if !cmd.Flags().Changed("log-level") {
		levelFlags = []string{cfg.Logging.Level}
	}
	if err := setupLog(levelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("server")

	logger.Info("Starting Tributary v%s", Version)
	logger.Debug("Configuration loaded: port=%d graph=%s", cfg.Server.Port, cfg.Storage.GraphName)

	manager := lifecycle.NewManager()

	// Initialize tracing provider
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider = nil
	}
	if tracingProvider != nil {
		if err := manager.Register(tracingProvider); err != nil {
			HandleError(err, "Tracing registration error")
		}
	}

	// One registry feeds /metrics; every subsystem registers its collectors
	promRegistry := prometheus.NewRegistry()

	// Storage: FalkorDB client with retries and the read cache
	client := storage.NewClient(cfg.Storage, storage.NewMetrics(promRegistry))
	storageComponent := storage.NewComponent(client)
	if err := manager.Register(storageComponent); err != nil {
		HandleError(err, "Storage registration error")
	}

	// Branch registry and schema cache
	schemas := schema.NewCache()
	branches := registry.New(client, schemas)
	if err := manager.Register(branches, storageComponent); err != nil {
		HandleError(err, "Registry registration error")
	}

	// Schema loader: reads the schema directory into the cache
	schemaLoader := schemafile.NewService(cfg.Schema, schemas)
	if err := manager.Register(schemaLoader); err != nil {
		HandleError(err, "Schema loader registration error")
	}

	// Event pipeline: batches mutation events for delivery
	pipeline := events.NewPipeline(events.Config{
		QueueSize:     cfg.Events.QueueSize,
		BatchSize:     cfg.Events.BatchSize,
		FlushInterval: cfg.Events.FlushInterval,
	}, nil, events.NewMetrics(promRegistry))
	if err := manager.Register(pipeline); err != nil {
		HandleError(err, "Event pipeline registration error")
	}

	// API server on top of the service facade; the registry doubles as the
	// readiness signal
	service := api.NewService(client, branches, schemas, pipeline)
	apiComponent := apiserver.New(cfg.Server.Port, service, branches, promRegistry)
	if err := manager.Register(apiComponent, branches, schemaLoader, pipeline); err != nil {
		HandleError(err, "API server registration error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := manager.Start(ctx); err != nil {
		HandleError(err, "Startup error")
	}

	logger.Info("Tributary started, serving on port %d", cfg.Server.Port)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Shutdown complete")
}
