// Package storage provides the file-provider layer: structured storage
// locations, a provider registry with fallback resolution, and concrete
// providers for the local filesystem and S3-compatible object storage.
//
// A stored folder string may carry an explicit "<provider>:" prefix. The
// Registry parses it exactly once into a Location value; everything
// downstream works with the structured form. Listing a location tries the
// addressed provider first and then the configured fallbacks in order, so a
// folder that moved between providers still resolves.
//
// The minio-backed Client interface underneath the S3 provider is mockable
// (see the mocks subpackage) and carries strict transport timeouts so a dead
// endpoint cannot hang a scan.
package storage
