package users

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the storefront's user collection.
const CollectionName = "users"

var ErrUserNotFound = errors.New("user not found")

// User is the subset of the storefront user document checkout needs.
type User struct {
	ID    primitive.ObjectID `bson:"_id"`
	Email string             `bson:"email"`
	Name  string             `bson:"name,omitempty"`
}

type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection(CollectionName)}
}

// FindByID looks a user up by its hex object id. A malformed id is reported
// as ErrUserNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var u User
	opts := options.FindOne().SetProjection(bson.M{"email": 1, "name": 1})
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}
