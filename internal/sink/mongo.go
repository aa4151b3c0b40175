package sink

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink stores prediction records in the spatial_predictions
// collection, linked to their lake document.
type MongoSink struct {
	client      *mongo.Client
	lakes       *mongo.Collection
	predictions *mongo.Collection
}

// NewMongo connects to the results database and verifies the
// connection with a ping.
func NewMongo(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "sink: connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "sink: ping")
	}

	db := client.Database(database)
	return &MongoSink{
		client:      client,
		lakes:       db.Collection("lakes"),
		predictions: db.Collection("spatial_predictions"),
	}, nil
}

// Publish resolves the lake document for the record's lake id and
// inserts one spatial-prediction document. An unknown lake id is an
// error; the caller treats it as the item's failure.
func (s *MongoSink) Publish(ctx context.Context, rec Record) error {
	var lake struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.lakes.FindOne(ctx, bson.M{"lagoslakeid": rec.LakeID}).Decode(&lake)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return eris.Errorf("sink: no lake with lagoslakeid %d", rec.LakeID)
	}
	if err != nil {
		return eris.Wrapf(err, "sink: find lake %d", rec.LakeID)
	}

	doc := bson.M{
		"raster_image":     rec.RasterImage,
		"display_image":    rec.DisplayImage,
		"date":             rec.DateISO,
		"corner1latitude":  rec.Corner1.Lat,
		"corner1longitude": rec.Corner1.Lon,
		"corner2latitude":  rec.Corner2.Lat,
		"corner2longitude": rec.Corner2.Lon,
		"scale":            rec.Scale,
		"session_uuid":     rec.SessionID,
		"lake":             lake.ID,
		"lagoslakeid":      rec.LakeID,
	}
	if _, err := s.predictions.InsertOne(ctx, doc); err != nil {
		return eris.Wrapf(err, "sink: insert prediction for lake %d", rec.LakeID)
	}
	return nil
}

// Close disconnects from the database.
func (s *MongoSink) Close(ctx context.Context) error {
	return eris.Wrap(s.client.Disconnect(ctx), "sink: disconnect")
}
