package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/zephyrite/zephyrite/internal/telemetry/logger"
	"github.com/zephyrite/zephyrite/pkg/crypto/adaptive"
)

// Verify validates the configuration and creates the directories the
// selected backend writes to. Every problem found is reported.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
		verifyTelemetry(&cfg.Telemetry),
	)
}

func verifyAddress(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	errs = append(errs, verifyAddress("server.http.address", cfg.HTTP.Address))
	if cfg.HTTP.ReadTimeout < 0 || cfg.HTTP.WriteTimeout < 0 || cfg.HTTP.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.http timeouts must not be negative"))
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must not be negative"))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}

	if cfg.Redis.Enabled {
		errs = append(errs, verifyAddress("server.redis.address", cfg.Redis.Address))
		if cfg.Redis.Address == cfg.HTTP.Address {
			errs = append(errs, errors.New("server.redis.address conflicts with server.http.address"))
		}
	}

	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	var errs []error

	if cfg.MemoryCapacity < 0 {
		errs = append(errs, errors.New("storage.memory_capacity must not be negative"))
	}
	switch cfg.SyncMode {
	case "sync", "batch":
	default:
		errs = append(errs, fmt.Errorf("storage.sync_mode %q must be sync or batch", cfg.SyncMode))
	}
	switch adaptive.CipherType(cfg.Cipher) {
	case "", adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		errs = append(errs, fmt.Errorf("storage.cipher %q is not supported", cfg.Cipher))
	}

	switch cfg.EffectiveBackend() {
	case BackendMemory:
	case BackendWAL:
		if cfg.WALFile == "" {
			errs = append(errs, errors.New("storage.wal_file is required for the wal backend"))
		} else if err := mkdir(filepath.Dir(cfg.WALFile)); err != nil {
			errs = append(errs, err)
		}
	case BackendBadger:
		if cfg.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the badger backend"))
		} else if err := mkdir(cfg.DataDir); err != nil {
			errs = append(errs, err)
		}
		if cfg.EncryptionKey != "" {
			errs = append(errs, errors.New("storage.encryption_key is only supported by the wal backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be memory, wal or badger", cfg.Backend))
	}

	return errors.Join(errs...)
}

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", cfg.Format))
	}
	return errors.Join(errs...)
}

func verifyTelemetry(cfg *TelemetrySection) error {
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio %v must be within [0, 1]", cfg.SampleRatio)
	}
	return nil
}
