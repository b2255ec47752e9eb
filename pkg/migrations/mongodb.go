package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureLocationIndexes creates the indexes backing the tracking
// queries: latest per courier, per order, active window and range scans.
// Re-running is a no-op.
func EnsureLocationIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("locations")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "courier_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_locations_courier_recorded"),
		},
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_locations_order_recorded"),
		},
		{
			Keys:    bson.D{{Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("idx_locations_recorded"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create location indexes: %w", err)
		}
	}

	return nil
}
