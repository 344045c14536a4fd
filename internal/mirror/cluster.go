package mirror

import "github.com/IBM/sarama"

// ClusterDial carries what's needed to connect to one Kafka-compatible
// cluster.
type ClusterDial struct {
	Brokers   []string
	Version   string
	TLSEnabled bool
	SASLUser  string
	SASLPass  string
	// StartFrom sets the consumer's initial-offset policy: "oldest" (the
	// default, required for replication to not skip history) or "newest".
	// ReplicationTask.Start does not consult it: a partition with no stored
	// offset always begins at the earliest retained record.
	StartFrom string
}

// NewSaramaConfig builds a sarama.Config for d. The producer side is
// configured for idempotent, fully-acked sends, so retried sends don't
// turn at-least-once delivery into duplicate records downstream.
func NewSaramaConfig(d ClusterDial) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(d.Version)
	if err != nil {
		return nil, err
	}
	cfg := sarama.NewConfig()
	cfg.Version = ver
	cfg.Consumer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	if d.TLSEnabled {
		cfg.Net.TLS.Enable = true
	}
	if d.SASLUser != "" {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = d.SASLUser
		cfg.Net.SASL.Password = d.SASLPass
	}
	switch d.StartFrom {
	case "newest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	return cfg, nil
}
