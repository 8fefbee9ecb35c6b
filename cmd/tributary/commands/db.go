package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tributarydb/tributary/internal/config"
	"github.com/tributarydb/tributary/internal/core/registry"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/logging"
	"github.com/tributarydb/tributary/internal/storage"
)

var (
	dbConfigPath   string
	dbStorageHost  string
	dbStoragePort  int
	dbStorageGraph string
	dbWipe         bool
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the graph database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a fresh graph",
	Long: `Create the graph indexes, the root node, and the default branch.
Running init against an already initialized graph is harmless.`,
	Run: runDBInit,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending graph migrations",
	Run:   runDBMigrate,
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbConfigPath, "config", "", "Path to the YAML configuration file (optional)")
	dbCmd.PersistentFlags().StringVar(&dbStorageHost, "storage-host", "localhost", "FalkorDB host")
	dbCmd.PersistentFlags().IntVar(&dbStoragePort, "storage-port", 6379, "FalkorDB port")
	dbCmd.PersistentFlags().StringVar(&dbStorageGraph, "storage-graph", "tributary", "FalkorDB graph name")
	dbInitCmd.Flags().BoolVar(&dbWipe, "wipe", false, "Delete the graph before initializing (destroys all data)")

	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}

// dbClient loads configuration and connects a storage client for one-shot
// database commands. The caller closes it.
func dbClient(cmd *cobra.Command, ctx context.Context) (storage.Client, *config.Config) {
	cfg, err := config.Load(dbConfigPath)
	if err != nil {
		HandleError(err, "Configuration error")
	}

	flags := cmd.Flags()
	if flags.Changed("storage-host") {
		cfg.Storage.Host = dbStorageHost
	}
	if flags.Changed("storage-port") {
		cfg.Storage.Port = dbStoragePort
	}
	if flags.Changed("storage-graph") {
		cfg.Storage.GraphName = dbStorageGraph
	}

	if err := cfg.Validate(); err != nil {
		HandleError(err, "Configuration error")
	}
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	client := storage.NewClient(cfg.Storage, nil)
	if err := client.Connect(ctx); err != nil {
		HandleError(err, "Connection error")
	}
	return client, cfg
}

func runDBInit(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, _ := dbClient(cmd, ctx)
	defer client.Close()
	logger := logging.GetLogger("db")

	if dbWipe {
		if err := client.DeleteGraph(ctx); err != nil {
			HandleError(err, "Failed to delete graph")
		}
		logger.Info("Graph deleted")
	}

	if err := client.InitializeSchema(ctx); err != nil {
		HandleError(err, "Failed to create indexes")
	}

	root, err := storage.EnsureRoot(ctx, client)
	if err != nil {
		HandleError(err, "Failed to initialize root")
	}

	// Loading the registry creates the default branch when missing.
	branches := registry.New(client, schema.NewCache())
	if err := branches.Load(ctx); err != nil {
		HandleError(err, "Failed to initialize default branch")
	}

	logger.Info("Graph initialized: root=%s version=%s", root.UUID, root.GraphVersion)
}

func runDBMigrate(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, _ := dbClient(cmd, ctx)
	defer client.Close()
	logger := logging.GetLogger("db")

	applied, err := storage.RunMigrations(ctx, client)
	if err != nil {
		HandleError(err, "Migration error")
	}

	if len(applied) == 0 {
		logger.Info("Graph already at version %s, nothing to apply", storage.CurrentGraphVersion)
		return
	}
	for _, name := range applied {
		logger.Info("Applied migration %s", name)
	}
}
