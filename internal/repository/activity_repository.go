package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/journal-portal/internal/model"
)

// ActivityRepo appends request activity to the activity collection.
type ActivityRepo struct{ coll *mongo.Collection }

func NewActivityRepo(db *mongo.Database) *ActivityRepo {
	return &ActivityRepo{coll: db.Collection("activity")}
}

func (r *ActivityRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("activity index: %w", err)
	}
	return nil
}

func (r *ActivityRepo) Record(ctx context.Context, a model.Activity) error {
	_, err := r.coll.InsertOne(ctx, a)
	return err
}

// ListForUser returns the user's latest entries, newest first.
func (r *ActivityRepo) ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Activity, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	out := []model.Activity{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
