// Package handler implements the zephyrite HTTP API on top of a
// storage.Engine.
//
// Every JSON response uses the Response envelope. Domain errors map to HTTP
// statuses through the numeric part of their code, so ZR-KEY-4040 answers
// 404 and ZR-SYS-5030 answers 503.
package handler
