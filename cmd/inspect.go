package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/limnolab/chloromap/internal/geo"
	"github.com/limnolab/chloromap/internal/raster"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <raster.tif>",
	Short: "Print a raster's shape, tags and WGS84 corners",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := raster.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}

		fmt.Printf("%s: %d bands, %d rows x %d cols\n", args[0], r.NumBands(), r.Rows, r.Cols)
		for _, key := range []string{raster.TagSatellite, raster.TagLakeID, raster.TagDate, raster.TagScale} {
			if v, ok := r.Tags[key]; ok {
				fmt.Printf("  %s = %s\n", key, v)
			} else {
				fmt.Printf("  %s missing\n", key)
			}
		}

		c1, c2, err := geo.Corners(r)
		if err != nil {
			fmt.Printf("  corners unavailable: %v\n", err)
			return nil
		}
		fmt.Printf("  corner1 %.6f, %.6f\n", c1.Lat, c1.Lon)
		fmt.Printf("  corner2 %.6f, %.6f\n", c2.Lat, c2.Lon)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
