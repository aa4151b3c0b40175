package raster

import (
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
)

var registerDrivers sync.Once

func gdalInit() {
	registerDrivers.Do(godal.RegisterAll)
}

// Open reads a GeoTIFF into memory: all bands as float64 grids plus the
// tag dictionary, geotransform and projection.
func Open(path string) (*Raster, error) {
	gdalInit()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = ds.Close() }()

	st := ds.Structure()
	r := &Raster{
		Rows:       st.SizeY,
		Cols:       st.SizeX,
		Bands:      make([][]float64, 0, st.NBands),
		Tags:       ds.Metadatas(),
		Projection: ds.Projection(),
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read geotransform of %s", path)
	}
	r.GeoTransform = gt

	for i, band := range ds.Bands() {
		buf := make([]float64, st.SizeX*st.SizeY)
		if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			return nil, eris.Wrapf(err, "raster: read band %d of %s", i+1, path)
		}
		r.Bands = append(r.Bands, buf)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write creates a GeoTIFF at path from an in-memory raster, carrying
// over georeferencing and tags.
func Write(path string, r *Raster) error {
	gdalInit()

	if err := r.Validate(); err != nil {
		return err
	}

	ds, err := godal.Create(godal.GTiff, path, r.NumBands(), godal.Float64, r.Cols, r.Rows)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}

	if err := ds.SetGeoTransform(r.GeoTransform); err != nil {
		_ = ds.Close()
		return eris.Wrapf(err, "raster: set geotransform on %s", path)
	}
	if r.Projection != "" {
		if err := ds.SetProjection(r.Projection); err != nil {
			_ = ds.Close()
			return eris.Wrapf(err, "raster: set projection on %s", path)
		}
	}
	for k, v := range r.Tags {
		if err := ds.SetMetadata(k, v); err != nil {
			_ = ds.Close()
			return eris.Wrapf(err, "raster: set tag %q on %s", k, path)
		}
	}

	for i, band := range ds.Bands() {
		if err := band.Write(0, 0, r.Bands[i], r.Cols, r.Rows); err != nil {
			_ = ds.Close()
			return eris.Wrapf(err, "raster: write band %d of %s", i+1, path)
		}
	}

	if err := ds.Close(); err != nil {
		return eris.Wrapf(err, "raster: flush %s", path)
	}
	return nil
}
