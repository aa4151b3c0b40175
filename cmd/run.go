package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limnolab/chloromap/internal/augment"
	"github.com/limnolab/chloromap/internal/config"
	"github.com/limnolab/chloromap/internal/constants"
	"github.com/limnolab/chloromap/internal/inference"
	"github.com/limnolab/chloromap/internal/pipeline"
	"github.com/limnolab/chloromap/internal/render"
	"github.com/limnolab/chloromap/internal/session"
	"github.com/limnolab/chloromap/internal/sink"
)

var (
	runFolder string
	runLimit  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run inference over every raster in the input folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		folder := cfg.Input.Folder
		if runFolder != "" {
			folder = runFolder
		}
		paths, err := listInputs(folder)
		if err != nil {
			return err
		}
		if runLimit > 0 && runLimit < len(paths) {
			paths = paths[:runLimit]
		}
		if len(paths) == 0 {
			return eris.Errorf("no .tif inputs in %s", folder)
		}

		ledger, err := session.NewLedger(cfg.Output.StatusDir)
		if err != nil {
			return eris.Wrap(err, "create session ledger")
		}

		// Artifacts are grouped per session so reruns never clobber
		// each other.
		tifDir, pngDir, err := sessionDirs(cfg.Output, ledger.ID())
		if err != nil {
			return err
		}

		store, err := constants.Open(cfg.Constants.DBPath)
		if err != nil {
			return eris.Wrap(err, "open constants store")
		}
		defer store.Close()

		est, err := inference.LoadLinear(cfg.Model.CoefficientsPath)
		if err != nil {
			return eris.Wrap(err, "load model coefficients")
		}

		aug := augment.New(cfg.Augment.Families, cfg.Augment.CanonicalBands, cfg.Model.Sentinel)
		if est.Features() != aug.TargetBands() {
			return eris.Errorf("model expects %d features but augmentation produces %d bands",
				est.Features(), aug.TargetBands())
		}

		var resultSink sink.Sink
		if cfg.Run.Production {
			ms, err := sink.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
			if err != nil {
				return eris.Wrap(err, "connect results database")
			}
			defer ms.Close(ctx)
			resultSink = ms
		}

		p, err := pipeline.New(pipeline.Settings{
			Augmentor:     aug,
			Engine:        inference.NewEngine(est, cfg.Model.Sentinel),
			Constants:     store,
			Renderer:      render.NewHeatmap(cfg.Render.Min, cfg.Render.Max),
			Sink:          resultSink,
			SessionID:     ledger.ID(),
			TIFDir:        tifDir,
			PNGDir:        pngDir,
			KeepAugmented: cfg.Output.KeepAugmented,
		})
		if err != nil {
			return err
		}

		report, err := p.Run(ctx, paths, ledger, cfg.Run.Concurrency)
		if err != nil {
			return eris.Wrap(err, "finalize session")
		}

		fmt.Printf("session %s: %d succeeded, %d failed of %d\n",
			report.SessionID, report.Succeeded, report.Failed, report.Total)
		if report.Failed > 0 {
			fmt.Printf("failed inputs listed in %s\n", ledger.ErrorPathsFile())
		}
		return nil
	},
}

// listInputs returns the .tif files directly under folder, sorted for a
// stable processing order.
func listInputs(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, eris.Wrapf(err, "read input folder %s", folder)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".tif" {
			paths = append(paths, filepath.Join(folder, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// sessionDirs creates the per-session artifact directories under the
// configured output roots.
func sessionDirs(out config.OutputConfig, sessionID string) (tifDir, pngDir string, err error) {
	tifDir = filepath.Join(out.TIFDir, "tif_out_"+sessionID)
	pngDir = filepath.Join(out.PNGDir, "png_out_"+sessionID)
	for _, dir := range []string{tifDir, pngDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", eris.Wrapf(err, "create output dir %s", dir)
		}
	}
	zap.L().Info("session output dirs ready",
		zap.String("tif_dir", tifDir),
		zap.String("png_dir", pngDir),
	)
	return tifDir, pngDir, nil
}

func init() {
	runCmd.Flags().StringVar(&runFolder, "folder", "", "input folder (overrides config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most N inputs (0 = all)")
	rootCmd.AddCommand(runCmd)
}
