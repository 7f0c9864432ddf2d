package config

import "time"

// ServerConfig is the root configuration for zephyrite-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server" yaml:"server"`
	Storage   StorageSection   `koanf:"storage" yaml:"storage"`
	Log       LogSection       `koanf:"log" yaml:"log"`
	Telemetry TelemetrySection `koanf:"telemetry" yaml:"telemetry"`
}

// ServerSection configures the listeners.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http" yaml:"http"`
	Redis RedisConfig `koanf:"redis" yaml:"redis"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Address      string        `koanf:"address" yaml:"address"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`

	// RateLimit is the sustained requests per second per client address.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `koanf:"rate_burst" yaml:"rate_burst"`

	// MaxBodyBytes caps PUT bodies. It should not exceed the value limit.
	MaxBodyBytes int64 `koanf:"max_body_bytes" yaml:"max_body_bytes"`

	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file"`
}

// RedisConfig configures the RESP listener.
type RedisConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Address string `koanf:"address" yaml:"address"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// Backend is memory, wal or badger.
	Backend string `koanf:"backend" yaml:"backend"`

	// Persistent selects the wal backend when Backend is memory.
	Persistent bool `koanf:"persistent" yaml:"persistent"`

	WALFile        string        `koanf:"wal_file" yaml:"wal_file"`
	DataDir        string        `koanf:"data_dir" yaml:"data_dir"`
	MemoryCapacity int           `koanf:"memory_capacity" yaml:"memory_capacity"`
	Checksums      bool          `koanf:"checksums" yaml:"checksums"`
	SyncMode       string        `koanf:"sync_mode" yaml:"sync_mode"`
	SyncInterval   time.Duration `koanf:"sync_interval" yaml:"sync_interval"`
	StrictKeys     bool          `koanf:"strict_keys" yaml:"strict_keys"`

	// EncryptionKey seals WAL values when non-empty. The cipher key is
	// derived from it with HKDF.
	EncryptionKey string `koanf:"encryption_key" yaml:"encryption_key"`

	// Cipher is aes-gcm or chacha20-poly1305; empty picks by CPU support.
	Cipher string `koanf:"cipher" yaml:"cipher"`
}

// EffectiveBackend resolves the persistent shorthand.
func (s StorageSection) EffectiveBackend() string {
	if s.Persistent && (s.Backend == "" || s.Backend == BackendMemory) {
		return BackendWAL
	}
	if s.Backend == "" {
		return BackendMemory
	}
	return s.Backend
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// TelemetrySection configures metrics and tracing.
type TelemetrySection struct {
	Metrics bool `koanf:"metrics" yaml:"metrics"`

	// TracingEndpoint is a Jaeger collector URL. Empty disables export.
	TracingEndpoint string  `koanf:"tracing_endpoint" yaml:"tracing_endpoint"`
	SampleRatio     float64 `koanf:"sample_ratio" yaml:"sample_ratio"`
}
