package config

import "strings"

// SyncConfig holds the settings consumed by the catalog synchronization
// core: manifest endpoints, scanned folders, and download policy.
type SyncConfig struct {
	// ManifestBaseURL is the base of the remote manifest store.
	ManifestBaseURL string `mapstructure:"manifest_base_url" default:""`
	// AuthState is the opaque session state for premium URL resolution.
	AuthState string `mapstructure:"auth_state" default:""`
	// Folders is a comma-separated list of scanned folder locations. Each
	// entry may carry an explicit storage-provider prefix.
	Folders string `mapstructure:"folders" default:""`
	// Extensions is the comma-separated file extension allow-list.
	Extensions string `mapstructure:"extensions" default:"png,jpg,jpeg,webp,gif,mp4,webm"`
	// DirectURLFree returns source URLs unchanged for free-tier content
	// instead of materializing a local copy.
	DirectURLFree bool `mapstructure:"direct_url_free" default:"false"`
	// BatchSize is the folder scan batch size.
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// SleepMs is the pacing sleep between scan batches.
	SleepMs int `mapstructure:"sleep_ms" default:"10"`
	// ProgressBatch is the full-replace progress reporting granularity.
	ProgressBatch int `mapstructure:"progress_batch" default:"500"`
	// MaxIndexed caps the background indexer's in-memory entries.
	MaxIndexed int `mapstructure:"max_indexed" default:"5000"`
	// PrimaryProvider names the provider assumed for unprefixed folders.
	PrimaryProvider string `mapstructure:"primary_provider" default:"data"`
	// FallbackProviders is the comma-separated provider fallback order.
	FallbackProviders string `mapstructure:"fallback_providers" default:"s3"`
	// FolderSelectionType filters the merged catalog (all or include).
	FolderSelectionType string `mapstructure:"folder_selection_type" default:"all"`
	// FolderInclude is the comma-separated include list for the filter.
	FolderInclude string `mapstructure:"folder_include" default:""`
}

// FolderList returns the configured folders as a slice.
func (c SyncConfig) FolderList() []string {
	return splitList(c.Folders)
}

// ExtensionList returns the extension allow-list as a slice.
func (c SyncConfig) ExtensionList() []string {
	return splitList(c.Extensions)
}

// FallbackList returns the provider fallback order as a slice.
func (c SyncConfig) FallbackList() []string {
	return splitList(c.FallbackProviders)
}

// IncludeList returns the folder include filter as a slice.
func (c SyncConfig) IncludeList() []string {
	return splitList(c.FolderInclude)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
