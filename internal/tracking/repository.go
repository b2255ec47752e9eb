package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"logiflow/internal/constants"
	pkgerrors "logiflow/pkg/errors"
)

type Repository interface {
	Insert(ctx context.Context, loc *Location) error
	Latest(ctx context.Context, courierID int64) (*Location, error)
	History(ctx context.Context, courierID int64, limit int) ([]Location, error)
	ByOrder(ctx context.Context, orderID int64, limit int) ([]Location, error)
	ActiveCouriers(ctx context.Context, since time.Time) ([]int64, error)
	ByTimeRange(ctx context.Context, courierID int64, from, to time.Time) ([]Location, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection("locations"),
	}
}

func (r *MongoDBRepository) Insert(ctx context.Context, loc *Location) error {
	res, err := r.collection.InsertOne(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		loc.ID = oid
	}
	return nil
}

func (r *MongoDBRepository) Latest(ctx context.Context, courierID int64) (*Location, error) {
	filter := bson.M{"courier_id": courierID}
	opts := options.FindOne().SetSort(bson.D{{Key: "recorded_at", Value: -1}})

	var loc Location
	err := r.collection.FindOne(ctx, filter, opts).Decode(&loc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrNotFound.WithDetail("courier_id", courierID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest location: %w", err)
	}
	return &loc, nil
}

func (r *MongoDBRepository) History(ctx context.Context, courierID int64, limit int) ([]Location, error) {
	filter := bson.M{"courier_id": courierID}
	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	return r.find(ctx, filter, opts)
}

func (r *MongoDBRepository) ByOrder(ctx context.Context, orderID int64, limit int) ([]Location, error) {
	filter := bson.M{"order_id": orderID}
	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	return r.find(ctx, filter, opts)
}

// ActiveCouriers returns the distinct couriers that reported at least one
// location since the given time.
func (r *MongoDBRepository) ActiveCouriers(ctx context.Context, since time.Time) ([]int64, error) {
	filter := bson.M{"recorded_at": bson.M{"$gte": since}}

	raw, err := r.collection.Distinct(ctx, "courier_id", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active couriers: %w", err)
	}

	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case int64:
			ids = append(ids, id)
		case int32:
			ids = append(ids, int64(id))
		case float64:
			ids = append(ids, int64(id))
		}
	}
	return ids, nil
}

func (r *MongoDBRepository) ByTimeRange(ctx context.Context, courierID int64, from, to time.Time) ([]Location, error) {
	filter := bson.M{
		"courier_id":  courierID,
		"recorded_at": bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})

	return r.find(ctx, filter, opts)
}

func (r *MongoDBRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Location, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find locations: %w", err)
	}
	defer cursor.Close(ctx)

	var locations []Location
	if err := cursor.All(ctx, &locations); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	return locations, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return limit
}
