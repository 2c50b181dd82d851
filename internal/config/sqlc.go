package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sqlcFile is the subset of a sqlc.yaml project file that maps onto the
// native configuration.
type sqlcFile struct {
	Version string      `yaml:"version"`
	SQL     []sqlcBlock `yaml:"sql"`
}

type sqlcBlock struct {
	Engine  string     `yaml:"engine"`
	Queries stringList `yaml:"queries"`
	Schema  stringList `yaml:"schema"`
	Gen     struct {
		Go struct {
			Package string `yaml:"package"`
			Out     string `yaml:"out"`
		} `yaml:"go"`
	} `yaml:"gen"`
}

// stringList accepts both a single scalar and a sequence, matching how
// sqlc treats the queries and schema keys.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = stringList(items)
	return nil
}

// ImportSQLC maps the first postgresql block of a sqlc.yaml file onto the
// native configuration. Directory entries under queries become *.sql
// glob patterns.
func ImportSQLC(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	var file sqlcFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	for _, block := range file.SQL {
		if block.Engine != "postgresql" {
			continue
		}
		cfg := Config{
			Package: block.Gen.Go.Package,
			Out:     block.Gen.Go.Out,
		}
		baseDir := filepath.Dir(path)
		for _, entry := range block.Queries {
			cfg.Queries = append(cfg.Queries, queryPattern(baseDir, entry))
		}
		return cfg, nil
	}
	return Config{}, fmt.Errorf("%s: no postgresql block found", path)
}

func queryPattern(baseDir, entry string) string {
	probe := entry
	if !filepath.IsAbs(probe) {
		probe = filepath.Join(baseDir, probe)
	}
	if fi, err := os.Stat(probe); err == nil && fi.IsDir() {
		return filepath.Join(entry, "*.sql")
	}
	return entry
}
