package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if len(cfg.Cohort.Kinds) == 0 || cfg.Cohort.Kinds[0] != "raw" {
		t.Errorf("kinds = %v", cfg.Cohort.Kinds)
	}
	if cfg.Output.Workers != 4 {
		t.Errorf("workers = %d", cfg.Output.Workers)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	m := NewManager()
	m.Get().Cohort.Kinds = []string{"raw", "mriqc"}
	m.Get().Output.Workers = 8
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(home, ".cohortkit", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("user config not written: %v", err)
	}

	fresh := NewManager()
	if err := fresh.Load(); err != nil {
		t.Fatal(err)
	}
	cfg := fresh.Get()
	if len(cfg.Cohort.Kinds) != 2 || cfg.Cohort.Kinds[1] != "mriqc" {
		t.Errorf("kinds = %v", cfg.Cohort.Kinds)
	}
	if cfg.Output.Workers != 8 {
		t.Errorf("workers = %d", cfg.Output.Workers)
	}
	if paths := fresh.GetPaths(); len(paths) != 1 || paths[0] != path {
		t.Errorf("loaded paths = %v", paths)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("COHORTKIT_WORKERS", "16")
	t.Setenv("COHORTKIT_OUTPUT", "/cohorts/out")

	m := NewManager()
	if err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if m.Get().Output.Workers != 16 {
		t.Errorf("workers = %d", m.Get().Output.Workers)
	}
	if m.Get().Output.Dir != "/cohorts/out" {
		t.Errorf("dir = %q", m.Get().Output.Dir)
	}
}
