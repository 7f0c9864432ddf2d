package config

import "github.com/zephyrite/zephyrite/internal/telemetry/logger"

// Sanitize returns a copy of the config with secrets masked, for logging or
// display.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Storage.EncryptionKey = logger.MaskSecret(cfg.Storage.EncryptionKey)
	return &sanitized
}
