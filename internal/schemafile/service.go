package schemafile

import (
	"context"

	"github.com/tributarydb/tributary/internal/core/branch"
	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/logging"
)

// Config holds the schema loading settings.
type Config struct {
	// Dir is the directory holding the schema YAML files.
	Dir string `yaml:"dir"`

	// Watch enables hot reload: the directory is watched and the default
	// branch snapshot is reinstalled on change.
	Watch bool `yaml:"watch"`

	// DebounceMillis is the reload debounce period. Default: 500ms.
	DebounceMillis int `yaml:"debounce_millis"`
}

// Service loads the schema directory into the default branch snapshot at
// startup and, when watching is enabled, keeps it in step with the files.
// Branches that duplicated a snapshot at create time keep theirs; branches
// without one pick up the new default through the cache fallback.
type Service struct {
	config  Config
	schemas *schema.Cache
	logger  *logging.Logger
	watcher *Watcher
}

// NewService creates the schema loading service.
func NewService(config Config, schemas *schema.Cache) *Service {
	return &Service{
		config:  config,
		schemas: schemas,
		logger:  logging.GetLogger("schemafile"),
	}
}

// Name implements lifecycle.Component.
func (s *Service) Name() string {
	return "schema-loader"
}

// Start loads the schema directory and installs the snapshot. With watching
// enabled it arms the directory watch before returning.
func (s *Service) Start(ctx context.Context) error {
	if !s.config.Watch {
		snapshot, err := Load(s.config.Dir)
		if err != nil {
			return err
		}
		return s.install(snapshot)
	}

	watcher, err := NewWatcher(WatcherConfig{
		Dir:            s.config.Dir,
		DebounceMillis: s.config.DebounceMillis,
	}, s.install)
	if err != nil {
		return err
	}
	s.watcher = watcher
	return watcher.Start(ctx)
}

// Stop tears down the directory watch, if one is running.
func (s *Service) Stop(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop(ctx)
}

// install publishes the snapshot on the default branch. Identical content is
// skipped so touch-only file events do not churn the cache.
func (s *Service) install(snapshot *schema.Snapshot) error {
	if s.schemas.Hash(branch.DefaultBranchName) == snapshot.Hash() {
		s.logger.Debug("schema unchanged, skipping install")
		return nil
	}
	s.schemas.SetBranch(branch.DefaultBranchName, snapshot)
	s.logger.InfoWithFields("schema installed",
		logging.Field("branch", branch.DefaultBranchName),
		logging.Field("kinds", len(snapshot.Kinds())),
		logging.Field("hash", snapshot.Hash()[:12]),
	)
	return nil
}
