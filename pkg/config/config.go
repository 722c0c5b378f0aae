// Package config provides hierarchical configuration management.
// Priority: defaults < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all cohortkit configuration.
type Config struct {
	Version int `yaml:"version"`

	Cohort CohortConfig `yaml:"cohort"`
	Output OutputConfig `yaml:"output"`
}

// CohortConfig controls selection defaults.
type CohortConfig struct {
	Kinds      []string `yaml:"kinds"`      // raw | fmriprep | mriqc
	Datatypes  []string `yaml:"datatypes"`  // anat | func | dwi
	Spaces     []string `yaml:"spaces"`     // acquisition spaces for derivative outputs
	FilterFile string   `yaml:"filter_file"` // empty = built-in table
}

// OutputConfig controls materialization and manifest output.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Workers int    `yaml:"workers"`
	XLSX    bool   `yaml:"xlsx"` // also write the manifest as a spreadsheet
}

// Default returns the default configuration.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Version: 1,
		Cohort: CohortConfig{
			Kinds:     []string{"raw"},
			Datatypes: []string{"anat"},
		},
		Output: OutputConfig{
			Dir:     filepath.Join(cwd, "cohort"),
			Workers: 4,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cohortkit", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".cohortkit.yaml"))
	}
	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if len(src.Cohort.Kinds) > 0 {
		m.config.Cohort.Kinds = src.Cohort.Kinds
	}
	if len(src.Cohort.Datatypes) > 0 {
		m.config.Cohort.Datatypes = src.Cohort.Datatypes
	}
	if len(src.Cohort.Spaces) > 0 {
		m.config.Cohort.Spaces = src.Cohort.Spaces
	}
	if src.Cohort.FilterFile != "" {
		m.config.Cohort.FilterFile = src.Cohort.FilterFile
	}
	if src.Output.Dir != "" {
		m.config.Output.Dir = src.Output.Dir
	}
	if src.Output.Workers != 0 {
		m.config.Output.Workers = src.Output.Workers
	}
	if src.Output.XLSX {
		m.config.Output.XLSX = true
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("COHORTKIT_OUTPUT"); v != "" {
		m.config.Output.Dir = v
	}
	if v := os.Getenv("COHORTKIT_FILTER_FILE"); v != "" {
		m.config.Cohort.FilterFile = v
	}
	if v := os.Getenv("COHORTKIT_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil && workers > 0 {
			m.config.Output.Workers = workers
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".cohortkit")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0o644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
