// Package config loads a replication flow's configuration: the pair of
// Kafka clusters to bridge, the topics assigned to it, and the knobs that
// feed mirror.TaskAssignment, via koanf YAML plus env-var overrides, a
// schema_version gate, and applyDefaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const SupportedSchema = "v1"

// ClusterConfig describes how to reach one Kafka-compatible cluster.
type ClusterConfig struct {
	Brokers   []string `koanf:"brokers"`
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`
	StartFrom string   `koanf:"start_from"` // oldest|newest; default oldest for replication
}

// PolicyConfig configures the pluggable ReplicationPolicy.
type PolicyConfig struct {
	Separator string `koanf:"separator"`
}

// FlowConfig is the full configuration of one source→target replication
// flow: cluster connectivity plus the knobs that become a
// mirror.TaskAssignment.
type FlowConfig struct {
	SchemaVersion string `koanf:"schema_version"`

	SourceClusterAlias string `koanf:"source_cluster_alias"`
	TargetClusterAlias string `koanf:"target_cluster_alias"`

	Source ClusterConfig `koanf:"source"`
	Target ClusterConfig `koanf:"target"`

	Topics           []string      `koanf:"topics"`
	OffsetSyncsTopic string        `koanf:"offset_syncs_topic"`
	MaxOffsetLag     int64         `koanf:"offset_lag_max"`
	PollTimeout      time.Duration `koanf:"consumer_poll_timeout"`

	// MaxInFlightRecords bounds how many forwarded records may be sent
	// to the target and not yet acknowledged at once.
	MaxInFlightRecords int64 `koanf:"max_in_flight_records"`

	ReplicationPolicy PolicyConfig `koanf:"replication_policy"`
}

// Load merges YAML (if present) at path with env-vars (prefix
// "KMIRROR_FLOW__", delimiter "__").
func Load(path string) (FlowConfig, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return FlowConfig{}, err
		}
	}
	return finishLoad(k)
}

// LoadBytes is Load's counterpart for a flow submitted as an in-memory
// YAML document rather than a file path, e.g. over the control plane's
// DeployPipeline RPC.
func LoadBytes(yamlDoc []byte) (FlowConfig, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(yamlDoc), yaml.Parser()); err != nil {
		return FlowConfig{}, err
	}
	return finishLoad(k)
}

func finishLoad(k *koanf.Koanf) (FlowConfig, error) {
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return FlowConfig{}, fmt.Errorf("flow schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	_ = k.Load(env.Provider("KMIRROR_FLOW__", "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "KMIRROR_FLOW__"))
	}), nil)

	var cfg FlowConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func validate(cfg FlowConfig) error {
	if cfg.SourceClusterAlias == "" {
		return errors.New("config: source_cluster_alias is required")
	}
	if cfg.TargetClusterAlias == "" {
		return errors.New("config: target_cluster_alias is required")
	}
	if len(cfg.Source.Brokers) == 0 {
		return errors.New("config: source.brokers is required")
	}
	if len(cfg.Target.Brokers) == 0 {
		return errors.New("config: target.brokers is required")
	}
	return nil
}

func applyDefaults(c *FlowConfig) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.MaxOffsetLag == 0 {
		c.MaxOffsetLag = 100
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 1000 * time.Millisecond
	}
	if c.OffsetSyncsTopic == "" {
		c.OffsetSyncsTopic = fmt.Sprintf("mm2-offset-syncs.%s.internal", c.TargetClusterAlias)
	}
	if c.ReplicationPolicy.Separator == "" {
		c.ReplicationPolicy.Separator = "."
	}
	if c.Source.Version == "" {
		c.Source.Version = "2.8.0"
	}
	if c.Target.Version == "" {
		c.Target.Version = "2.8.0"
	}
	if c.Source.StartFrom == "" {
		c.Source.StartFrom = "oldest"
	}
	if c.MaxInFlightRecords == 0 {
		c.MaxInFlightRecords = 500
	}
}
