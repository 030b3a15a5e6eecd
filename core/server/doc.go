// Package server holds the HTTP server configuration consumed by the
// application entry point.
package server
