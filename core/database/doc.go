// Package database opens the GORM connection backing the persisted catalog
// index. Sqlite is the default driver so a fresh install works offline with
// zero setup; mysql is available for deployments that share one index
// between processes.
package database
