// Package config loads application configuration from environment variables
// and an optional .env file, with defaults declared as struct tags on the
// partial Config types owned by each package.
//
// Keys nest by section: SERVER_PORT maps to server.port, SYNC_FOLDERS to
// sync.folders, and so on.
//
// # Change notifications
//
// LoadConfig also returns a Watcher, the live settings store. Consumers read
// and write opaque values through Get/Set and subscribe to per-key change
// callbacks; the shared catalog uses this to invalidate itself when a
// folder or cloud toggle changes. Start() additionally applies external
// edits to the .env file through the same notification path.
package config
