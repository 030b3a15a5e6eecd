package cmd

import (
	"fmt"

	"catalog-sync/core/model"
	"catalog-sync/feature/manifest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [kind]",
	Short: "Synchronize the persisted index against the remote manifest",
	Long: `Runs the full/delta manifest protocol for one catalog kind, or for
asset and token when no kind is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []model.Kind{model.KindAsset, model.KindToken}
		if len(args) == 1 {
			k := model.Kind(args[0])
			if k != model.KindAsset && k != model.KindToken {
				return fmt.Errorf("unknown kind %q", args[0])
			}
			kinds = []model.Kind{k}
		}

		a, err := buildApplication(true)
		if err != nil {
			return err
		}
		defer a.close()

		for _, kind := range kinds {
			latest, err := a.engine.Sync(cmd.Context(), kind, manifest.SyncOptions{
				ProgressBatch: a.cfg.Sync.ProgressBatch,
				OnProgress: func(done, total int) {
					a.logger.Info("Rebuilding index",
						zap.String("kind", string(kind)),
						zap.Int("done", done), zap.Int("total", total))
				},
			})
			if err != nil {
				return fmt.Errorf("sync %s: %w", kind, err)
			}
			count, _ := a.manifestStore.Count(cmd.Context(), kind)
			a.logger.Info("Sync complete",
				zap.String("kind", string(kind)),
				zap.String("latest", latest),
				zap.Int64("count", count))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(syncCmd)
}
