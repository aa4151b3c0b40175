package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/limnolab/chloromap/internal/constants"
)

var (
	importCSVPath string
	importXLSX    string
	importSHP     string
	shpIDField    string
	shpDevField   string
	shpAgField    string
	shpDivisor    float64
)

var constantsCmd = &cobra.Command{
	Use:   "constants",
	Short: "Manage the per-lake constants database",
}

var constantsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import lake constants from CSV, XLSX or a lake polygon shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importCSVPath == "" && importXLSX == "" && importSHP == "" {
			return eris.New("one of --csv, --xlsx or --shapefile is required")
		}

		store, err := openConstants(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		var total int
		if importCSVPath != "" {
			n, err := store.ImportCSV(ctx, importCSVPath)
			if err != nil {
				return eris.Wrap(err, "import csv")
			}
			zap.L().Info("constants imported", zap.String("source", importCSVPath), zap.Int("rows", n))
			total += n
		}
		if importXLSX != "" {
			n, err := store.ImportXLSX(ctx, importXLSX)
			if err != nil {
				return eris.Wrap(err, "import xlsx")
			}
			zap.L().Info("constants imported", zap.String("source", importXLSX), zap.Int("rows", n))
			total += n
		}
		if importSHP != "" {
			opts := constants.ShapefileOptions{
				IDField:     shpIDField,
				PctDevField: shpDevField,
				PctAgField:  shpAgField,
				AreaDivisor: shpDivisor,
			}
			n, err := store.ImportShapefile(ctx, importSHP, opts)
			if err != nil {
				return eris.Wrap(err, "import shapefile")
			}
			zap.L().Info("constants imported", zap.String("source", importSHP), zap.Int("lakes", n))
			total += n
		}

		count, err := store.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d rows, %d lakes total\n", total, count)
		return nil
	},
}

var constantsGetCmd = &cobra.Command{
	Use:   "get <lagoslakeid>",
	Short: "Print the stored constants for one lake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lakeID, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "parse lake id %q", args[0])
		}

		store, err := openConstants(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		v, err := store.Get(ctx, lakeID)
		if err != nil {
			return err
		}
		fmt.Printf("lagoslakeid=%d area_km2=%g pct_developed=%g pct_agricultural=%g\n",
			lakeID, v.AreaSqKm, v.PctDeveloped, v.PctAgricultural)
		return nil
	},
}

func openConstants(ctx context.Context) (*constants.Store, error) {
	store, err := constants.Open(cfg.Constants.DBPath)
	if err != nil {
		return nil, eris.Wrap(err, "open constants store")
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func init() {
	def := constants.DefaultShapefileOptions()
	constantsImportCmd.Flags().StringVar(&importCSVPath, "csv", "", "CSV file: lagoslakeid,surface_area_km2,pct_developed,pct_agricultural")
	constantsImportCmd.Flags().StringVar(&importXLSX, "xlsx", "", "XLSX workbook with the same four columns")
	constantsImportCmd.Flags().StringVar(&importSHP, "shapefile", "", "lake polygon shapefile")
	constantsImportCmd.Flags().StringVar(&shpIDField, "id-field", def.IDField, "DBF field holding the lake id")
	constantsImportCmd.Flags().StringVar(&shpDevField, "dev-field", def.PctDevField, "DBF field holding percent developed")
	constantsImportCmd.Flags().StringVar(&shpAgField, "ag-field", def.PctAgField, "DBF field holding percent agricultural")
	constantsImportCmd.Flags().Float64Var(&shpDivisor, "area-divisor", def.AreaDivisor, "CRS area units per km2")

	constantsCmd.AddCommand(constantsImportCmd)
	constantsCmd.AddCommand(constantsGetCmd)
	rootCmd.AddCommand(constantsCmd)
}
