package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/sentinel/domain"
)

// LoginAttemptRepositoryMongo implements domain.LoginAttemptRepository.
type LoginAttemptRepositoryMongo struct {
	collection *mongo.Collection
}

func NewLoginAttemptRepositoryMongo(ctx context.Context, db *mongo.Database) (*LoginAttemptRepositoryMongo, error) {
	repo := &LoginAttemptRepositoryMongo{
		collection: db.Collection(LoginAttemptsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "ip_address", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// Attempts are only interesting within the brute-force window;
			// let Mongo drop them after a day.
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(86400),
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for login_attempts collection (might already exist)")
	}

	return repo, nil
}

func (r *LoginAttemptRepositoryMongo) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = bson.NewObjectID().Hex()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("Error storing login attempt in MongoDB")
		return err
	}
	return nil
}

// CountFailedSince counts failed attempts for the user, or for the IP when
// no user is known.
func (r *LoginAttemptRepositoryMongo) CountFailedSince(ctx context.Context, userID, ip string, since time.Time) (int64, error) {
	filter := bson.M{
		"succeeded":  false,
		"created_at": bson.M{"$gte": since},
	}
	if userID != "" {
		filter["user_id"] = userID
	} else {
		filter["ip_address"] = ip
	}
	return r.collection.CountDocuments(ctx, filter)
}
