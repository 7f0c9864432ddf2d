package config

import "time"

// Backend names accepted by storage.backend.
const (
	BackendMemory = "memory"
	BackendWAL    = "wal"
	BackendBadger = "badger"
)

// Default configuration values.
const (
	DefaultHTTPAddr     = ":8080"
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
	DefaultMaxBodyBytes = 1 << 20

	DefaultWALFile        = "zephyrite.wal"
	DefaultDataDir        = "data"
	DefaultMemoryCapacity = 1000
	DefaultSyncMode       = "sync"
	DefaultSyncInterval   = 100 * time.Millisecond

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultSampleRatio = 1.0
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Address:      DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
				MaxBodyBytes: DefaultMaxBodyBytes,
			},
			Redis: RedisConfig{
				Enabled: false,
				Address: DefaultRedisAddr,
			},
		},
		Storage: StorageSection{
			Backend:        BackendMemory,
			WALFile:        DefaultWALFile,
			DataDir:        DefaultDataDir,
			MemoryCapacity: DefaultMemoryCapacity,
			Checksums:      true,
			SyncMode:       DefaultSyncMode,
			SyncInterval:   DefaultSyncInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			Metrics:     true,
			SampleRatio: DefaultSampleRatio,
		},
	}
}
