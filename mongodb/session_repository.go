package mongodb

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/sentinel/domain"
)

// SessionRepositoryMongo implements domain.SessionRepository using MongoDB.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewSessionRepositoryMongo creates the repository and ensures its indexes.
// The unique index on session_key is what makes GetOrCreate race-safe.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (*SessionRepositoryMongo, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "last_activity", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for user_sessions collection (might already exist)")
	}

	return repo, nil
}

// GetOrCreate inserts the candidate or returns the existing record for the
// same session key. A duplicate-key failure from a concurrent insert is
// resolved by reloading the winner's row.
func (r *SessionRepositoryMongo) GetOrCreate(ctx context.Context, candidate *domain.SessionRecord) (*domain.SessionRecord, bool, error) {
	existing, err := r.getBySessionKey(ctx, candidate.SessionKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, err
	}

	if candidate.ID == "" {
		candidate.ID = bson.NewObjectID().Hex()
	}

	if _, err := r.collection.InsertOne(ctx, candidate); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, ferr := r.getBySessionKey(ctx, candidate.SessionKey)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		log.Error().Err(err).Msg("Error storing session in MongoDB")
		return nil, false, err
	}
	return candidate, true, nil
}

func (r *SessionRepositoryMongo) getBySessionKey(ctx context.Context, key string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"session_key": key}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Update persists the record's activity fields. last_activity uses $max so
// interleaved writers can never move it backwards.
func (r *SessionRepositoryMongo) Update(ctx context.Context, rec *domain.SessionRecord) error {
	if rec.ID == "" {
		return errors.New("session ID is required for update")
	}
	update := bson.M{
		"$set": bson.M{
			"ip_address":         rec.IPAddress,
			"user_agent":         rec.UserAgent,
			"device_type":        rec.DeviceType,
			"browser":            rec.Browser,
			"os":                 rec.OS,
			"location":           rec.Location,
			"status":             rec.Status,
			"termination_reason": rec.TerminationReason,
			"terminated_at":      rec.TerminatedAt,
			"is_terminated":      rec.IsTerminated,
		},
		"$max": bson.M{
			"last_activity": rec.LastActivity,
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": rec.ID}, update)
	if err != nil {
		log.Error().Err(err).Str("sessionID", rec.ID).Msg("Error updating session in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		log.Error().Err(err).Str("id", id).Msg("Error getting session by ID from MongoDB")
		return nil, err
	}
	return &rec, nil
}

var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// List returns one page of sessions matching the filter plus the total match
// count. An out-of-range page clamps to the last page.
func (r *SessionRepositoryMongo) List(ctx context.Context, filter domain.SessionFilter, now time.Time) ([]*domain.SessionRecord, int64, error) {
	query := bson.M{}

	if filter.Status != "" && filter.Status != "all" {
		query["status"] = filter.Status
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.DeviceType != "" {
		query["device_type"] = filter.DeviceType
	}
	if filter.UserRole != "" && filter.UserRole != "all" {
		query["user_role"] = filter.UserRole
	}
	if filter.Search != "" {
		pattern := regexp.QuoteMeta(filter.Search)
		rx := bson.M{"$regex": pattern, "$options": "i"}
		query["$or"] = bson.A{
			bson.M{"username": rx},
			bson.M{"user_email": rx},
			bson.M{"ip_address": rx},
			bson.M{"location": rx},
		}
	}
	if d, ok := timeRanges[filter.TimeRange]; ok {
		query["last_activity"] = bson.M{"$gte": now.Add(-d)}
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	if totalPages > 0 && int64(page) > totalPages {
		page = int(totalPages)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetSkip(int64(page-1) * int64(pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var records []*domain.SessionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *SessionRepositoryMongo) CountTouchedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"user_id":       userID,
		"last_activity": bson.M{"$gte": since},
	})
}

func (r *SessionRepositoryMongo) CountConcurrentActive(ctx context.Context, userID string, since time.Time, excludeIP string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"user_id":       userID,
		"status":        domain.SessionStatusActive,
		"last_activity": bson.M{"$gte": since},
		"ip_address":    bson.M{"$ne": excludeIP},
	})
}

// TerminateByIDs force-terminates the given sessions in one set-based update.
func (r *SessionRepositoryMongo) TerminateByIDs(ctx context.Context, ids []string, reason string, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{
			"status":             domain.SessionStatusTerminated,
			"is_terminated":      true,
			"termination_reason": reason,
			"terminated_at":      now,
		}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *SessionRepositoryMongo) SetStatusByIDs(ctx context.Context, ids []string, status domain.SessionStatus) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// RefreshByIDs re-derives expired-vs-active purely from expires_at. Two
// conditional set-based updates keep it safe under concurrent invocation.
func (r *SessionRepositoryMongo) RefreshByIDs(ctx context.Context, ids []string, now time.Time) (int64, int64, error) {
	expiredRes, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": domain.SessionStatusExpired}},
	)
	if err != nil {
		return 0, 0, err
	}
	activeRes, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "expires_at": bson.M{"$gte": now}},
		bson.M{"$set": bson.M{"status": domain.SessionStatusActive}},
	)
	if err != nil {
		return expiredRes.ModifiedCount, 0, err
	}
	return expiredRes.ModifiedCount, activeRes.ModifiedCount, nil
}

func (r *SessionRepositoryMongo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"status": domain.SessionStatusActive, "expires_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": domain.SessionStatusExpired}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *SessionRepositoryMongo) PurgeTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"status":        domain.SessionStatusTerminated,
		"last_activity": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// Metrics aggregates session statistics for the admin dashboard.
func (r *SessionRepositoryMongo) Metrics(ctx context.Context, now time.Time) (*domain.SessionMetrics, error) {
	m := &domain.SessionMetrics{GeneratedAt: now}

	var err error
	if m.TotalSessions, err = r.collection.CountDocuments(ctx, bson.M{}); err != nil {
		return nil, err
	}
	statusCounts := map[domain.SessionStatus]*int64{
		domain.SessionStatusActive:     &m.ActiveSessions,
		domain.SessionStatusExpired:    &m.ExpiredSessions,
		domain.SessionStatusTerminated: &m.TerminatedSessions,
		domain.SessionStatusSuspicious: &m.SuspiciousSessions,
	}
	for status, dst := range statusCounts {
		if *dst, err = r.collection.CountDocuments(ctx, bson.M{"status": status}); err != nil {
			return nil, err
		}
	}

	if m.RecentSessions24h, err = r.collection.CountDocuments(ctx, bson.M{
		"last_activity": bson.M{"$gte": now.Add(-24 * time.Hour)},
	}); err != nil {
		return nil, err
	}

	var activeUsers []string
	res := r.collection.Distinct(ctx, "user_id", bson.M{"status": domain.SessionStatusActive})
	if err := res.Decode(&activeUsers); err != nil {
		return nil, err
	}
	m.UniqueActiveUsers = int64(len(activeUsers))

	if m.DeviceDistribution, err = r.groupCount(ctx, "$device_type", nil); err != nil {
		return nil, err
	}
	if m.BrowserDistribution, err = r.groupCount(ctx, "$browser", nil); err != nil {
		return nil, err
	}
	activeOnly := bson.M{"status": domain.SessionStatusActive}
	if m.OrganizationSessions, err = r.groupCount(ctx, "$organization", activeOnly); err != nil {
		return nil, err
	}

	return m, nil
}

func (r *SessionRepositoryMongo) groupCount(ctx context.Context, field string, match bson.M) ([]domain.DistributionBucket, error) {
	pipeline := mongo.Pipeline{}
	if match != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var buckets []domain.DistributionBucket
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (r *SessionRepositoryMongo) ListByStatusSince(ctx context.Context, status domain.SessionStatus, since time.Time, limit int) ([]*domain.SessionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{
		"status":        status,
		"last_activity": bson.M{"$gte": since},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*domain.SessionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SessionRepositoryMongo) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": since}})
}

func (r *SessionRepositoryMongo) CountByStatusCreatedSince(ctx context.Context, status domain.SessionStatus, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"status":     status,
		"created_at": bson.M{"$gte": since},
	})
}

func (r *SessionRepositoryMongo) CountDistinctIPsSince(ctx context.Context, since time.Time) (int64, error) {
	var ips []string
	res := r.collection.Distinct(ctx, "ip_address", bson.M{"created_at": bson.M{"$gte": since}})
	if err := res.Decode(&ips); err != nil {
		return 0, err
	}
	return int64(len(ips)), nil
}
