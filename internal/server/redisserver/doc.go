// Package redisserver serves the key-value store over the Redis RESP2
// protocol so that stock Redis clients can talk to it.
//
// Supported commands:
//   - PING, ECHO, QUIT
//   - GET, SET, DEL, EXISTS
//   - KEYS (glob patterns), DBSIZE, FLUSHDB
//   - INFO, COMMAND
//
// SET takes no options. Expiry, transactions and pub/sub are not provided.
package redisserver
