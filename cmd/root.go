package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limnolab/chloromap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "chloromap",
	Short: "Per-lake chlorophyll prediction pipeline",
	Long:  "Reads tagged per-lake GeoTIFF rasters, normalizes them to the model's band layout, runs pixelwise inference and exports prediction rasters, display heatmaps and session status files.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
