package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFlow(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "flow.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write flow config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, `
source_cluster_alias: east
target_cluster_alias: west
source:
  brokers: ["east:9092"]
target:
  brokers: ["west:9092"]
topics: ["orders"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchemaVersion != SupportedSchema {
		t.Fatalf("SchemaVersion = %q, want %q", cfg.SchemaVersion, SupportedSchema)
	}
	if cfg.MaxOffsetLag != 100 {
		t.Fatalf("MaxOffsetLag = %d, want default 100", cfg.MaxOffsetLag)
	}
	if cfg.PollTimeout != time.Second {
		t.Fatalf("PollTimeout = %s, want default 1s", cfg.PollTimeout)
	}
	if cfg.OffsetSyncsTopic != "mm2-offset-syncs.west.internal" {
		t.Fatalf("OffsetSyncsTopic = %q, want the derived default", cfg.OffsetSyncsTopic)
	}
	if cfg.ReplicationPolicy.Separator != "." {
		t.Fatalf("ReplicationPolicy.Separator = %q, want \".\"", cfg.ReplicationPolicy.Separator)
	}
	if cfg.MaxInFlightRecords != 500 {
		t.Fatalf("MaxInFlightRecords = %d, want default 500", cfg.MaxInFlightRecords)
	}
}

func TestLoad_MissingClusterAliasFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, `
target_cluster_alias: west
source:
  brokers: ["east:9092"]
target:
  brokers: ["west:9092"]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when source_cluster_alias is missing")
	}
}

func TestLoad_UnsupportedSchemaVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFlow(t, dir, `
schema_version: v999
source_cluster_alias: east
target_cluster_alias: west
source:
  brokers: ["east:9092"]
target:
  brokers: ["west:9092"]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unsupported schema_version")
	}
}

func TestLoadBytes_SameDefaultsAsLoad(t *testing.T) {
	doc := []byte(`
source_cluster_alias: east
target_cluster_alias: west
source:
  brokers: ["east:9092"]
target:
  brokers: ["west:9092"]
topics: ["orders"]
`)

	cfg, err := LoadBytes(doc)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if cfg.OffsetSyncsTopic != "mm2-offset-syncs.west.internal" {
		t.Fatalf("OffsetSyncsTopic = %q, want the derived default", cfg.OffsetSyncsTopic)
	}
}

func TestLoad_NoFileStillReadsEnv(t *testing.T) {
	t.Setenv("KMIRROR_FLOW__SOURCE_CLUSTER_ALIAS", "east")
	t.Setenv("KMIRROR_FLOW__TARGET_CLUSTER_ALIAS", "west")
	t.Setenv("KMIRROR_FLOW__SOURCE__BROKERS", "east:9092")
	t.Setenv("KMIRROR_FLOW__TARGET__BROKERS", "west:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceClusterAlias != "east" || cfg.TargetClusterAlias != "west" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
