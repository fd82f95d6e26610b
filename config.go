package binstream

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/filegrind/binstream-go/wire"
)

// Config holds the tunable settings of the binary side channel. Values
// load from TOML and overlay DefaultConfig, so a file only needs the
// keys it wants to change.
type Config struct {
	// ChunkSize paces adapter writes and reads, in bytes.
	ChunkSize int `toml:"chunk_size"`
	// Base64Threshold is the payload size above which the resolver
	// prefers binary mode without an explicit request.
	Base64Threshold uint64 `toml:"base64_threshold"`
	// MaxBinarySize caps a single payload; 0 means unlimited.
	MaxBinarySize uint64 `toml:"max_binary_size"`
	// ProgressIntervalBytes sets the notification cadence.
	ProgressIntervalBytes uint64 `toml:"progress_interval_bytes"`
	// ReapIntervalSeconds sets how often the reaper scans.
	ReapIntervalSeconds int `toml:"reap_interval_seconds"`
	// IdleThresholdSeconds sets how long a descriptor may sit without
	// progress before reclamation.
	IdleThresholdSeconds int `toml:"idle_threshold_seconds"`
	// ModePreference orders transfer modes for negotiation and
	// resolution.
	ModePreference []string `toml:"mode_preference"`
	// ChecksumsEnabled toggles SHA-256 digests on registered sources.
	ChecksumsEnabled bool `toml:"checksums_enabled"`
}

// DefaultConfig returns the baseline settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:             wire.DefaultChunkSize,
		Base64Threshold:       defaultBase64Threshold,
		MaxBinarySize:         0,
		ProgressIntervalBytes: defaultProgressInterval,
		ReapIntervalSeconds:   30,
		IdleThresholdSeconds:  300,
		ModePreference:        []string{string(ModeStream), string(ModeBinaryFrame), string(ModeMultipart)},
		ChecksumsEnabled:      true,
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load binstream config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for internal consistency.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ReapIntervalSeconds <= 0 {
		return fmt.Errorf("reap_interval_seconds must be positive, got %d", c.ReapIntervalSeconds)
	}
	if c.IdleThresholdSeconds <= 0 {
		return fmt.Errorf("idle_threshold_seconds must be positive, got %d", c.IdleThresholdSeconds)
	}
	for _, name := range c.ModePreference {
		if _, err := ParseMode(name); err != nil {
			return fmt.Errorf("mode_preference: %w", err)
		}
	}
	return nil
}

// Preference returns the configured mode preference as typed modes.
func (c Config) Preference() []Mode {
	modes := make([]Mode, 0, len(c.ModePreference))
	for _, name := range c.ModePreference {
		if m, err := ParseMode(name); err == nil {
			modes = append(modes, m)
		}
	}
	return modes
}

// LocalCapability derives the capability this side announces at session
// initialization.
func (c Config) LocalCapability() BinaryTransferCapability {
	cap := BinaryTransferCapability{
		Supported:      true,
		SupportedModes: c.Preference(),
	}
	if c.MaxBinarySize > 0 {
		max := c.MaxBinarySize
		cap.MaxBinarySize = &max
	}
	return cap
}

// ReapInterval returns the reap scan interval as a duration.
func (c Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSeconds) * time.Second
}

// IdleThreshold returns the idle reclamation threshold as a duration.
func (c Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdSeconds) * time.Second
}
