package kafka

import (
	"strings"
	"time"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	MaxAttempts  int
}

// DefaultConfig returns producer defaults for the given broker list
// ("host:port,host:port").
func DefaultConfig(brokers, clientID string) Config {
	return Config{
		Brokers:      strings.Split(brokers, ","),
		ClientID:     clientID,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1,
		MaxAttempts:  3,
	}
}

// Topics lists the topics this service produces to
var Topics = struct {
	PickPackEvents string
}{
	PickPackEvents: "fulfillment.pickpack.events",
}
