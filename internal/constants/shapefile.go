package constants

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ShapefileOptions maps DBF attribute fields onto constants columns.
// The shapefile must be in a projected CRS; polygon areas are divided
// by AreaDivisor to obtain square kilometres (1e6 for metre units).
type ShapefileOptions struct {
	IDField     string
	PctDevField string
	PctAgField  string
	AreaDivisor float64
}

// DefaultShapefileOptions match the LAGOS lake polygon exports.
func DefaultShapefileOptions() ShapefileOptions {
	return ShapefileOptions{
		IDField:     "lagoslakeid",
		PctDevField: "pct_dev",
		PctAgField:  "pct_ag",
		AreaDivisor: 1e6,
	}
}

// ImportShapefile loads lake polygons, computing the surface-area
// constant from the geometry and the land-cover percentages from DBF
// attributes. Records with malformed geometry or attributes are skipped
// and counted, not fatal. Returns the number of imported lakes.
func (s *Store) ImportShapefile(ctx context.Context, path string, opts ShapefileOptions) (int, error) {
	if opts.AreaDivisor <= 0 {
		opts.AreaDivisor = 1e6
	}

	reader, err := shp.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "constants: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	idIdx, ok := fieldIdx[strings.ToLower(opts.IDField)]
	if !ok {
		return 0, eris.Errorf("constants: shapefile has no field %q", opts.IDField)
	}
	devIdx, ok := fieldIdx[strings.ToLower(opts.PctDevField)]
	if !ok {
		return 0, eris.Errorf("constants: shapefile has no field %q", opts.PctDevField)
	}
	agIdx, ok := fieldIdx[strings.ToLower(opts.PctAgField)]
	if !ok {
		return 0, eris.Errorf("constants: shapefile has no field %q", opts.PctAgField)
	}

	var imported, skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly, isPoly := shape.(*shp.Polygon)
		if !isPoly || poly == nil {
			skipped++
			continue
		}

		id, idErr := strconv.Atoi(strings.TrimSpace(reader.Attribute(idIdx)))
		if idErr != nil {
			skipped++
			continue
		}
		dev, devErr := strconv.ParseFloat(strings.TrimSpace(reader.Attribute(devIdx)), 64)
		ag, agErr := strconv.ParseFloat(strings.TrimSpace(reader.Attribute(agIdx)), 64)
		if devErr != nil || agErr != nil {
			skipped++
			continue
		}

		area := polygonArea(poly) / opts.AreaDivisor
		if area <= 0 {
			skipped++
			continue
		}

		v := Values{AreaSqKm: area, PctDeveloped: dev, PctAgricultural: ag}
		if err := s.Put(ctx, id, v); err != nil {
			return imported, err
		}
		imported++
	}

	if skipped > 0 {
		zap.L().Debug("constants: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return imported, nil
}

// polygonArea sums the absolute ring areas of a shapefile polygon in
// CRS units squared. Rings are converted to go-geom linear rings part
// by part; shapefile hole rings are wound opposite the outer ring, so
// their signed areas cancel out of the total.
func polygonArea(p *shp.Polygon) float64 {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return 0
	}

	var total float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		total += ring.Area()
	}
	return math.Abs(total)
}
