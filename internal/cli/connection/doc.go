// Package connection is the zephyrite-cli client for the HTTP API.
//
// Every JSON response arrives in the server's envelope; Client unwraps the
// data field on success and turns error envelopes into *APIError.
package connection
