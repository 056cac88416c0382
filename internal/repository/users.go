package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaychat/relay/internal/domain"
)

// UserRepo reads the minimal profiles embedded in realtime payloads. Account
// management itself lives with the auth provider, not here.
type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection("users")}
}

func (r *UserRepo) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile upserts the mutable profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	// upsert so first login materialises the profile
	_, err := r.coll.UpdateByID(ctx, p.ID,
		bson.M{"$set": bson.M{"name": p.Name, "image": p.Image}},
		options.Update().SetUpsert(true))
	return err
}
