package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/sentinel/domain"
)

// NotificationRepositoryMongo implements domain.NotificationRepository.
type NotificationRepositoryMongo struct {
	collection *mongo.Collection
}

func NewNotificationRepositoryMongo(ctx context.Context, db *mongo.Database) (*NotificationRepositoryMongo, error) {
	repo := &NotificationRepositoryMongo{
		collection: db.Collection(NotificationsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for notifications collection (might already exist)")
	}

	return repo, nil
}

func (r *NotificationRepositoryMongo) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, n); err != nil {
		log.Error().Err(err).Msg("Error storing notification in MongoDB")
		return err
	}
	return nil
}

func (r *NotificationRepositoryMongo) ListRecentSecurityAlerts(ctx context.Context, since time.Time, limit int) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{
		"type":       domain.NotificationTypeSecurityAlert,
		"created_at": bson.M{"$gte": since},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*domain.Notification
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}
