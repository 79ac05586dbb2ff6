package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// MongoDBStorage implements Storage using MongoDB. Badge replacement here is
// two statements (delete, insert) without a transaction; the empty-badge
// window is accepted and bounded to a single participant.
type MongoDBStorage struct {
	client       *mongo.Client
	participants *mongo.Collection
	badges       *mongo.Collection
	runs         *mongo.Collection
	snapshots    *mongo.Collection
}

type participantDoc struct {
	ID          string     `bson:"_id"`
	ProfileURL  string     `bson:"profile_url"`
	FullName    string     `bson:"full_name"`
	Email       string     `bson:"email"`
	TotalBadges int        `bson:"total_badges"`
	Rank        int        `bson:"rank"`
	LastEarned  *time.Time `bson:"last_earned"`
	LastScraped time.Time  `bson:"last_scraped"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type badgeDoc struct {
	ParticipantID string     `bson:"participant_id"`
	BadgeName     string     `bson:"badge_name"`
	RawDateText   string     `bson:"raw_date_text"`
	EarnedDate    *time.Time `bson:"earned_date"`
	Position      int        `bson:"position"`
}

type runDoc struct {
	ID            string     `bson:"_id"`
	StartedAt     time.Time  `bson:"started_at"`
	FinishedAt    *time.Time `bson:"finished_at"`
	TotalProfiles int        `bson:"total_profiles"`
	SuccessCount  int        `bson:"success_count"`
	FailureCount  int        `bson:"failure_count"`
	Log           string     `bson:"log"`
}

// NewMongoDBStorage connects to MongoDB and prepares collection handles.
func NewMongoDBStorage(ctx context.Context, cfg config.StorageConfig) (*MongoDBStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	ping := func() error { return client.Ping(ctx, nil) }
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.MongoDBName)
	return &MongoDBStorage{
		client:       client,
		participants: db.Collection("participants"),
		badges:       db.Collection("badges"),
		runs:         db.Collection("runs"),
		snapshots:    db.Collection("leaderboard_snapshot"),
	}, nil
}

// UpsertParticipant upserts by profile URL and returns the document ID.
func (m *MongoDBStorage) UpsertParticipant(ctx context.Context, p models.ParticipantRecord) (string, error) {
	filter := bson.M{"profile_url": p.ProfileURL}
	update := bson.M{
		"$set": bson.M{
			"full_name":    p.FullName,
			"email":        p.Email,
			"total_badges": p.TotalBadges,
			"last_earned":  p.LastEarned,
			"last_scraped": p.LastScraped,
			"updated_at":   time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"_id":         uuid.NewString(),
			"profile_url": p.ProfileURL,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc participantDoc
	if err := m.participants.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return "", fmt.Errorf("upsert participant %s: %w", p.ProfileURL, err)
	}
	return doc.ID, nil
}

// ReplaceBadges deletes the participant's badge documents and inserts the
// new set.
func (m *MongoDBStorage) ReplaceBadges(ctx context.Context, participantID string, badges []models.Badge) error {
	if _, err := m.badges.DeleteMany(ctx, bson.M{"participant_id": participantID}); err != nil {
		return fmt.Errorf("delete badges: %w", err)
	}
	if len(badges) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(badges))
	for i, b := range badges {
		docs = append(docs, badgeDoc{
			ParticipantID: participantID,
			BadgeName:     b.Name,
			RawDateText:   b.RawDate,
			EarnedDate:    b.EarnedAt,
			Position:      i,
		})
	}
	if _, err := m.badges.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert badges: %w", err)
	}
	return nil
}

// UpdateRanks loads every participant, orders them in memory (Mongo sorts
// missing values first on ascending keys, which would put undated
// participants ahead of dated ones) and writes back 1-based ranks.
func (m *MongoDBStorage) UpdateRanks(ctx context.Context) (int, error) {
	cursor, err := m.participants.Find(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("load participants: %w", err)
	}
	var docs []participantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("decode participants: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return rankLess(docs[i], docs[j]) })
	for i, doc := range docs {
		if _, err := m.participants.UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{"rank": i + 1}}); err != nil {
			return i, fmt.Errorf("write rank for %s: %w", doc.ProfileURL, err)
		}
	}
	return len(docs), nil
}

func rankLess(a, b participantDoc) bool {
	if a.TotalBadges != b.TotalBadges {
		return a.TotalBadges > b.TotalBadges
	}
	switch {
	case a.LastEarned == nil && b.LastEarned == nil:
		return a.ProfileURL < b.ProfileURL
	case a.LastEarned == nil:
		return false
	case b.LastEarned == nil:
		return true
	}
	if !a.LastEarned.Equal(*b.LastEarned) {
		return a.LastEarned.Before(*b.LastEarned)
	}
	return a.ProfileURL < b.ProfileURL
}

// CreateRun inserts the audit document for a new run.
func (m *MongoDBStorage) CreateRun(ctx context.Context, run *models.RunRecord) error {
	doc := runDoc{
		ID:            run.ID,
		StartedAt:     run.StartedAt,
		TotalProfiles: run.TotalProfiles,
		Log:           run.Log,
	}
	if _, err := m.runs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// CompleteRun finalizes the audit document.
func (m *MongoDBStorage) CompleteRun(ctx context.Context, runID string, success, failure int, log string) error {
	update := bson.M{"$set": bson.M{
		"finished_at":   time.Now().UTC(),
		"success_count": success,
		"failure_count": failure,
		"log":           log,
	}}
	if _, err := m.runs.UpdateByID(ctx, runID, update); err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	return nil
}

// SaveSnapshot appends the serialized leaderboard snapshot.
func (m *MongoDBStorage) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	doc := bson.M{
		"_id":        uuid.NewString(),
		"created_at": time.Now().UTC(),
		"snapshot":   string(data),
	}
	if _, err := m.snapshots.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Leaderboard returns stored participants in rank order.
func (m *MongoDBStorage) Leaderboard(ctx context.Context, limit int) ([]models.ParticipantRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "rank", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.participants.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	var docs []participantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}

	records := make([]models.ParticipantRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, models.ParticipantRecord{
			ID:          d.ID,
			FullName:    d.FullName,
			Email:       d.Email,
			ProfileURL:  d.ProfileURL,
			TotalBadges: d.TotalBadges,
			Rank:        d.Rank,
			LastEarned:  d.LastEarned,
			LastScraped: d.LastScraped,
		})
	}
	return records, nil
}

// RecentRuns returns the newest audit documents first.
func (m *MongoDBStorage) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.runs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var docs []runDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}

	runs := make([]models.RunRecord, 0, len(docs))
	for _, d := range docs {
		runs = append(runs, models.RunRecord{
			ID:            d.ID,
			StartedAt:     d.StartedAt,
			FinishedAt:    d.FinishedAt,
			TotalProfiles: d.TotalProfiles,
			SuccessCount:  d.SuccessCount,
			FailureCount:  d.FailureCount,
			Log:           d.Log,
		})
	}
	return runs, nil
}

// Close disconnects the client.
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
