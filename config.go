package tcpcore

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Defaults for the constants the core consumes.
const (
	// DefaultStreamCapacity is the capacity of each direction's byte stream.
	DefaultStreamCapacity = 64000
	// DefaultMaxPayloadSize bounds the payload of a single TCP segment.
	DefaultMaxPayloadSize = 1000
	// DefaultInitialRTOMs is the retransmission timeout before backoff.
	DefaultInitialRTOMs = 1000
	// DefaultARPEntryTTLMs is how long a learned IP to Ethernet mapping is kept.
	DefaultARPEntryTTLMs = 30 * 1000
	// DefaultARPRequestTTLMs is how long to wait for an ARP reply before
	// dropping the datagrams queued for that address.
	DefaultARPRequestTTLMs = 5 * 1000
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config collects the tunables of a host: stream sizing, sender timing and
// ARP lifetimes. All durations are in logical milliseconds.
type Config struct {
	StreamCapacity  uint64 `yaml:"stream_capacity"`
	MaxPayloadSize  uint64 `yaml:"max_payload_size"`
	InitialRTOMs    uint64 `yaml:"initial_rto_ms"`
	ARPEntryTTLMs   uint64 `yaml:"arp_entry_ttl_ms"`
	ARPRequestTTLMs uint64 `yaml:"arp_request_ttl_ms"`

	// LogLevel is parsed with zerolog.ParseLevel. Only the example programs
	// apply it; the library never configures the global logger.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StreamCapacity:  DefaultStreamCapacity,
		MaxPayloadSize:  DefaultMaxPayloadSize,
		InitialRTOMs:    DefaultInitialRTOMs,
		ARPEntryTTLMs:   DefaultARPEntryTTLMs,
		ARPRequestTTLMs: DefaultARPRequestTTLMs,
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.StreamCapacity == 0:
		return fmt.Errorf("stream_capacity must be positive: %w", ErrInvalidConfig)
	case c.MaxPayloadSize == 0:
		return fmt.Errorf("max_payload_size must be positive: %w", ErrInvalidConfig)
	case c.InitialRTOMs == 0:
		return fmt.Errorf("initial_rto_ms must be positive: %w", ErrInvalidConfig)
	case c.ARPEntryTTLMs == 0:
		return fmt.Errorf("arp_entry_ttl_ms must be positive: %w", ErrInvalidConfig)
	case c.ARPRequestTTLMs == 0:
		return fmt.Errorf("arp_request_ttl_ms must be positive: %w", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, ErrInvalidConfig)
	}
	return nil
}

// Sender returns the sender portion of the configuration.
func (c Config) Sender() SenderConfig {
	return SenderConfig{
		InitialRTOMs:   c.InitialRTOMs,
		MaxPayloadSize: c.MaxPayloadSize,
	}
}

// Interface returns the ARP portion of the configuration.
func (c Config) Interface() InterfaceConfig {
	return InterfaceConfig{
		ARPEntryTTLMs:   c.ARPEntryTTLMs,
		ARPRequestTTLMs: c.ARPRequestTTLMs,
	}
}
