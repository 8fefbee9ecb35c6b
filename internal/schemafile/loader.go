// Package schemafile loads node schema definitions from YAML files on disk
// and keeps the per-branch schema cache in step with them. This is the only
// package that reads schema files; core/schema works purely on installed
// snapshots.
package schemafile

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tributarydb/tributary/internal/core/schema"
	"github.com/tributarydb/tributary/internal/errdefs"
)

// SupportedVersion is the schema file format version this build accepts.
// Files without an explicit version are treated as this version.
const SupportedVersion = "1.0"

// File is the parsed form of one schema YAML document.
type File struct {
	Version string               `yaml:"version"`
	Nodes   []*schema.NodeSchema `yaml:"nodes"`
}

// LoadFile parses a single schema YAML file. The node schemas are returned
// as written; normalization happens when the snapshot is assembled.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.KindValidation, err, "unable to read schema file %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errdefs.Wrapf(errdefs.KindValidation, err, "unable to parse schema file %s", path)
	}

	if f.Version != "" && f.Version != SupportedVersion {
		return nil, errdefs.Newf(errdefs.KindValidation, "unsupported schema file version %q in %s", f.Version, path)
	}
	if len(f.Nodes) == 0 {
		return nil, errdefs.Newf(errdefs.KindValidation, "schema file %s declares no nodes", path)
	}

	return &f, nil
}

// LoadDir parses every .yml/.yaml file directly under dir, in filename
// order. A kind declared in two files is an error naming both files.
func LoadDir(dir string) ([]*schema.NodeSchema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.KindValidation, err, "unable to read schema directory %s", dir)
	}

	var nodes []*schema.NodeSchema
	declaredIn := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isSchemaFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, node := range f.Nodes {
			if node == nil || node.Kind == "" {
				return nil, errdefs.Newf(errdefs.KindValidation, "schema file %s declares a node without a kind", path)
			}
			if previous, ok := declaredIn[node.Kind]; ok {
				return nil, errdefs.Newf(errdefs.KindValidation, "kind %s declared in both %s and %s", node.Kind, previous, path)
			}
			declaredIn[node.Kind] = path
			nodes = append(nodes, node)
		}
	}

	if len(nodes) == 0 {
		return nil, errdefs.Newf(errdefs.KindValidation, "no schema files found in %s", dir)
	}

	return nodes, nil
}

// Load reads the schema directory and assembles a normalized snapshot.
func Load(dir string) (*schema.Snapshot, error) {
	nodes, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return schema.NewSnapshot(nodes)
}

func isSchemaFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yml" || ext == ".yaml"
}
