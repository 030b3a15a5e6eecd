package events

// Event is the interface implemented by all lifecycle events.
type Event interface {
	isEvent()
}

// Sync lifecycle

// SyncStarted is emitted when a manifest sync begins for a kind.
type SyncStarted struct {
	Kind string
}

func (SyncStarted) isEvent() {}

// SyncProgress is emitted per progress batch while an index is rebuilt.
type SyncProgress struct {
	Kind  string
	Done  int
	Total int
}

func (SyncProgress) isEvent() {}

// SyncCompleted is emitted when a manifest sync finishes, including no-ops.
type SyncCompleted struct {
	Kind   string
	Latest string
	Count  int64
	NoOp   bool
}

func (SyncCompleted) isEvent() {}

// SyncFailed is emitted when a manifest sync gives up after retries.
type SyncFailed struct {
	Kind string
	Err  error
}

func (SyncFailed) isEvent() {}

// Download lifecycle

// DownloadStage names a phase of a download job.
type DownloadStage string

const (
	StageStart    DownloadStage = "start"
	StageFetch    DownloadStage = "fetch"
	StagePrepare  DownloadStage = "prepare"
	StageUpload   DownloadStage = "upload"
	StageComplete DownloadStage = "complete"
	StageError    DownloadStage = "error"
)

// DownloadProgress is emitted as a download job moves through its stages.
type DownloadProgress struct {
	Kind  string
	Path  string
	Stage DownloadStage
}

func (DownloadProgress) isEvent() {}

// DownloadCompleted is emitted once the artifact is placed in local storage.
type DownloadCompleted struct {
	Kind      string
	Path      string
	LocalPath string
}

func (DownloadCompleted) isEvent() {}

// DownloadFailed is emitted when a download job fails after retries.
type DownloadFailed struct {
	Kind string
	Path string
	Err  error
}

func (DownloadFailed) isEvent() {}

// Catalog lifecycle

// CatalogInvalidated is emitted when the shared catalog is marked stale.
// Consumers are expected to request their own reload.
type CatalogInvalidated struct {
	Version uint64
}

func (CatalogInvalidated) isEvent() {}

// CatalogLoaded is emitted after a successful catalog load.
type CatalogLoaded struct {
	Version uint64
	Items   int
	Partial bool
}

func (CatalogLoaded) isEvent() {}
