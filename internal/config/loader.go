package config

import (
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then TRIBUTARY_* environment variables. The result is validated.
//
// Recognized environment variables:
//
//	TRIBUTARY_PORT              server.port
//	TRIBUTARY_LOG_LEVEL         logging.level
//	TRIBUTARY_STORAGE_HOST      storage.host
//	TRIBUTARY_STORAGE_PORT      storage.port
//	TRIBUTARY_STORAGE_PASSWORD  storage.password
//	TRIBUTARY_STORAGE_GRAPH     storage.graph_name
//	TRIBUTARY_SCHEMA_DIR        schema.dir
//	TRIBUTARY_TRACING_ENDPOINT  tracing.endpoint
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, NewConfigError("unable to read config file " + path + ": " + err.Error())
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, NewConfigError("unable to parse config file " + path + ": " + err.Error())
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TRIBUTARY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigError("TRIBUTARY_PORT must be an integer")
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("TRIBUTARY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIBUTARY_STORAGE_HOST"); v != "" {
		cfg.Storage.Host = v
	}
	if v := os.Getenv("TRIBUTARY_STORAGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigError("TRIBUTARY_STORAGE_PORT must be an integer")
		}
		cfg.Storage.Port = port
	}
	if v := os.Getenv("TRIBUTARY_STORAGE_PASSWORD"); v != "" {
		cfg.Storage.Password = v
	}
	if v := os.Getenv("TRIBUTARY_STORAGE_GRAPH"); v != "" {
		cfg.Storage.GraphName = v
	}
	if v := os.Getenv("TRIBUTARY_SCHEMA_DIR"); v != "" {
		cfg.Schema.Dir = v
	}
	if v := os.Getenv("TRIBUTARY_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	return nil
}
