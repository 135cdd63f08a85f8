package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/shopsight/internal/utils"
	"github.com/sw33tLie/shopsight/pkg/pipeline"
	"github.com/sw33tLie/shopsight/pkg/storage"
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <store-url>",
	Short: "Extract structured insights from a storefront",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := optionsFromConfig(cmd)

		opts.IncludeCompetitors, _ = cmd.Flags().GetBool("competitors")
		opts.MaxCompetitors, _ = cmd.Flags().GetInt("max-competitors")
		if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
			opts.TimeoutBudget = time.Duration(timeout) * time.Second
		}

		st, err := pipeline.Extract(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}

		if save, _ := cmd.Flags().GetBool("save"); save {
			dbPath, _ := cmd.Flags().GetString("dbpath")
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if _, err := db.SaveSnapshot(cmd.Context(), st); err != nil {
				return err
			}
			utils.Log.Info("Snapshot saved to ", dbPath)
		}

		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// optionsFromConfig builds pipeline options from the viper config plus the
// global flags every subcommand shares.
func optionsFromConfig(cmd *cobra.Command) pipeline.Options {
	proxy, _ := cmd.Flags().GetString("proxy")
	return pipeline.Options{
		TimeoutBudget:   time.Duration(viper.GetInt("extract.timeout_seconds")) * time.Second,
		MaxRetries:      viper.GetInt("extract.retries"),
		Concurrency:     viper.GetInt("extract.concurrency"),
		MaxCatalogPages: viper.GetInt("extract.max_catalog_pages"),
		CatalogPageSize: viper.GetInt("extract.catalog_page_size"),
		DefaultRegion:   viper.GetString("extract.default_region"),
		UserAgent:       viper.GetString("extract.user_agent"),
		Proxy:           proxy,
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolP("competitors", "c", false, "Also discover likely competitor stores")
	extractCmd.Flags().Int("max-competitors", 3, "Maximum competitor candidates to evaluate")
	extractCmd.Flags().Int("timeout", 0, "Whole-run timeout in seconds (overrides config)")
	extractCmd.Flags().Bool("save", false, "Persist the result as a snapshot")
	extractCmd.Flags().String("dbpath", "shopsight.sqlite", "Path to the snapshot database")
}
