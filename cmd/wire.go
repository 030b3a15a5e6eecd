package cmd

import (
	"strings"

	"catalog-sync/core/config"
	"catalog-sync/core/database"
	"catalog-sync/core/events"
	"catalog-sync/core/logger"
	"catalog-sync/core/metrics"
	"catalog-sync/core/model"
	"catalog-sync/core/retry"
	"catalog-sync/core/storage"
	"catalog-sync/feature/catalog"
	"catalog-sync/feature/download"
	"catalog-sync/feature/inventory"
	"catalog-sync/feature/manifest"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the fully wired catalog core shared by the CLI
// commands and the server.
type application struct {
	cfg     *config.Config
	watcher *config.Watcher
	logger  *zap.Logger
	db      *gorm.DB

	registry *storage.Registry
	bus      *events.Bus
	metrics  *metrics.Metrics

	manifestStore *manifest.Store
	engine        *manifest.Engine
	collector     *inventory.Collector
	resolver      *download.Resolver
	manager       *download.Manager
	catalog       *catalog.Service
}

// buildApplication loads configuration and wires every component. Commands
// that print to a terminal pass console=true to get readable log output.
func buildApplication(console bool) (*application, error) {
	cfg, watcher, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}
	if console {
		cfg.Log.Format = "console"
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logg)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := storage.NewRegistry(cfg.Sync.PrimaryProvider, cfg.Sync.FallbackList()...)
	registry.Register(storage.NewFSProvider("data", cfg.Storage.LocalRoot))
	if client, err := storage.NewClient(cfg.Storage); err != nil {
		// Object storage is an optional fallback; local-only setups run
		// without it.
		logg.Warn("Object storage unavailable", zap.Error(err))
	} else {
		registry.Register(storage.NewS3Provider("s3", client, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL))
	}
	primary, err := registry.Primary()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	m := metrics.New()

	manifestStore, err := manifest.NewStore(db, logg)
	if err != nil {
		return nil, err
	}
	client := manifest.NewClient(cfg.Sync.ManifestBaseURL, nil, retry.DefaultOptions(), logg)
	engine := manifest.NewEngine(manifestStore, client, bus, m, logg)

	folderStore, err := inventory.NewStore(db)
	if err != nil {
		return nil, err
	}
	scanner := inventory.NewScanner(registry, cfg.Sync.ExtensionList(), logg)
	collector := inventory.NewCollector(folderStore, scanner, logg)

	auth := func() string {
		state, _ := watcher.Get("sync", "auth_state").(string)
		return state
	}
	resolver := download.NewResolver(cfg.Sync.ManifestBaseURL, auth,
		download.NewURLCache(download.DefaultURLTTL), nil, retry.DefaultOptions(), m, logg)
	manager := download.NewManager(primary, nil, retry.DefaultOptions(), bus, m, logg, download.Options{
		DirectURLFree: cfg.Sync.DirectURLFree,
		MaxIndexed:    cfg.Sync.MaxIndexed,
	})

	folders := func() []string {
		raw, _ := watcher.Get("sync", "folders").(string)
		return splitList(raw)
	}
	selection := func() *model.FolderSelection {
		selType, _ := watcher.Get("sync", "folder_selection_type").(string)
		include, _ := watcher.Get("sync", "folder_include").(string)
		s := &model.FolderSelection{
			Type:         model.SelectionType(selType),
			IncludePaths: splitList(include),
		}
		s.Normalize(s.IncludePaths)
		return s
	}
	service := catalog.NewService(collector, catalog.NewCloudIndex(engine, manifestStore),
		manager, bus, m, logg, catalog.Options{
			Folders:   folders,
			Selection: selection,
		})
	service.BindConfig(watcher)

	return &application{
		cfg:           cfg,
		watcher:       watcher,
		logger:        logg,
		db:            db,
		registry:      registry,
		bus:           bus,
		metrics:       m,
		manifestStore: manifestStore,
		engine:        engine,
		collector:     collector,
		resolver:      resolver,
		manager:       manager,
		catalog:       service,
	}, nil
}

// close releases the pieces with teardown behavior.
func (a *application) close() {
	a.engine.WaitForRebuilds()
	a.catalog.Close()
	a.watcher.Close()
	_ = a.logger.Sync()
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
