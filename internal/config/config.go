// Package config loads K9db's on-disk connection configuration: the
// database name and KV store path that spec.md names as the only required
// setup for opening a database. Grounded on the TOML-decode-then-validate
// shape of the teacher's internal/parser/toml package, adapted from a
// multi-table schema document to a single small settings file.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// tomlConfig is the top-level k9db.toml document.
type tomlConfig struct {
	Database tomlDatabase `toml:"database"`
	Dataflow tomlDataflow `toml:"dataflow"`
}

type tomlDatabase struct {
	Name     string `toml:"name"`
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

type tomlDataflow struct {
	Workers int `toml:"workers"`
}

// Config is the validated, defaulted connection configuration.
type Config struct {
	DatabaseName string
	StorePath    string
	InMemory     bool
	Workers      int
}

// DefaultWorkers mirrors the original's default dataflow worker-thread
// count when k9db.toml leaves dataflow.workers unset.
const DefaultWorkers = 1

// Load reads and validates a k9db.toml file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads k9db.toml content from r and returns the validated Config.
func Parse(r io.Reader) (*Config, error) {
	var tc tomlConfig
	if _, err := toml.NewDecoder(r).Decode(&tc); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return convert(&tc)
}

func convert(tc *tomlConfig) (*Config, error) {
	name := strings.TrimSpace(tc.Database.Name)
	if name == "" {
		return nil, fmt.Errorf("config: database.name is required")
	}

	path := strings.TrimSpace(tc.Database.Path)
	if !tc.Database.InMemory && path == "" {
		return nil, fmt.Errorf("config: database.path is required unless database.in_memory is true")
	}

	workers := tc.Dataflow.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	if workers < 0 {
		return nil, fmt.Errorf("config: dataflow.workers must be non-negative, got %d", workers)
	}

	return &Config{
		DatabaseName: name,
		StorePath:    path,
		InMemory:     tc.Database.InMemory,
		Workers:      workers,
	}, nil
}
