// Package sink publishes prediction metadata to the results database.
// Publishing happens once per item in production mode and is never
// retried; a failed publish fails the item.
package sink

import (
	"context"

	"github.com/limnolab/chloromap/internal/geo"
)

// Record is the metadata persisted for one prediction raster.
type Record struct {
	LakeID       int
	RasterImage  string // basename of the prediction GeoTIFF
	DisplayImage string // basename of the rendered PNG
	DateISO      string
	Corner1      geo.Corner
	Corner2      geo.Corner
	Scale        string
	SessionID    string
}

// Sink accepts prediction records for durable storage.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
