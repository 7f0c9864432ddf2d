// Command zephyrite-cli is the command-line client for a Zephyrite server.
//
// Usage:
//
//	zephyrite-cli put user:john "Software Engineer"
//	zephyrite-cli get user:john
//	zephyrite-cli -o json keys 'user:*'
//	zephyrite-cli --server db:8080 compact
package main
