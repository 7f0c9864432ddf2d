// Package confloader loads layered configuration with koanf.
//
// Priority, highest first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (ZEPHYRITE_ prefix)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Environment variable names are matched against the koanf tags of the
// target, so ZEPHYRITE_STORAGE_WAL_FILE sets storage.wal_file rather than
// storage.wal.file. The Watcher reports writes to a configuration file so
// hot-reloadable settings can be applied without a restart.
package confloader
