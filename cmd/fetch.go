package cmd

import (
	"fmt"

	"catalog-sync/core/model"

	"github.com/spf13/cobra"
)

var fetchKind string
var fetchPremium bool

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <path>",
	Short: "Materialize one catalog item into local storage",
	Long: `Resolves the download URL for a record path and ensures a local copy
exists, reusing an already-placed file when one is found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := model.Kind(fetchKind)
		if kind != model.KindAsset && kind != model.KindToken {
			return fmt.Errorf("unknown kind %q", fetchKind)
		}

		item, err := model.NewRecord(kind, model.SourceCloud, args[0])
		if err != nil {
			return err
		}
		if fetchPremium {
			item.Tier = model.TierPremium
		}

		a, err := buildApplication(true)
		if err != nil {
			return err
		}
		defer a.close()

		sourceURL, err := a.resolver.Resolve(cmd.Context(), item)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", item.FilePath, err)
		}
		local, err := a.manager.EnsureLocal(cmd.Context(), item, sourceURL)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", item.FilePath, err)
		}

		fmt.Println(local)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchKind, "kind", string(model.KindAsset), "catalog kind (asset|token)")
	fetchCmd.Flags().BoolVar(&fetchPremium, "premium", false, "resolve through the signed-URL endpoint")
	RootCmd.AddCommand(fetchCmd)
}
