package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"stat7/internal/testutil"
)

func TestDefaultValues(t *testing.T) {
	c := Default()
	if c.Server.ListenAddr != ":8088" {
		t.Fatalf("ListenAddr = %q, want :8088", c.Server.ListenAddr)
	}
	if c.Stat7.EmbeddingProvider != "local" {
		t.Fatalf("EmbeddingProvider = %q, want local", c.Stat7.EmbeddingProvider)
	}
	if c.Stat7.ThetaMerge != 0.92 {
		t.Fatalf("ThetaMerge = %v, want 0.92", c.Stat7.ThetaMerge)
	}
	if c.Stat7.ThetaEdge != 0.75 {
		t.Fatalf("ThetaEdge = %v, want 0.75", c.Stat7.ThetaEdge)
	}
	if c.Stat7.WFCIterations != 7 {
		t.Fatalf("WFCIterations = %d, want 7", c.Stat7.WFCIterations)
	}
	if c.Stat7.CacheTTLSeconds != 300 {
		t.Fatalf("CacheTTLSeconds = %d, want 300", c.Stat7.CacheTTLSeconds)
	}
	if c.Stat7.RateLimits.RequestsPerSecond != 50 {
		t.Fatalf("RequestsPerSecond = %v, want 50", c.Stat7.RateLimits.RequestsPerSecond)
	}
	if c.Storage.DataDir != "./data" {
		t.Fatalf("DataDir = %q, want ./data", c.Storage.DataDir)
	}
}

func TestLoadWithoutConfigFileKeepsDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should not error when no config file is present: %v", err)
	}
	if cfg.Stat7.ThetaMerge != 0.92 {
		t.Fatalf("expected default ThetaMerge to remain in effect, got %v", cfg.Stat7.ThetaMerge)
	}
	if cfg.Server.ListenAddr != ":8088" {
		t.Fatalf("expected default ListenAddr to remain in effect, got %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFromEnvWithoutOverrideUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	os.Unsetenv("STAT7_ENV")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Stat7.WFCIterations != 7 {
		t.Fatalf("expected default WFCIterations, got %d", cfg.Stat7.WFCIterations)
	}
}

func TestLoadMergesYAMLOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("stat7:\n  theta_merge: 0.5\n  wfc_iterations: 3\n")
	if err := sb.WriteFile("config/default.yaml", data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stat7.ThetaMerge != 0.5 {
		t.Fatalf("expected overridden ThetaMerge 0.5, got %v", cfg.Stat7.ThetaMerge)
	}
	if cfg.Stat7.WFCIterations != 3 {
		t.Fatalf("expected overridden WFCIterations 3, got %d", cfg.Stat7.WFCIterations)
	}
	if cfg.Stat7.ThetaEdge != 0.75 {
		t.Fatalf("unoverridden field should keep its default, got %v", cfg.Stat7.ThetaEdge)
	}
}
