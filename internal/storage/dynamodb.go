package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/studyjam/leaderboard-scraper/internal/config"
	"github.com/studyjam/leaderboard-scraper/internal/models"
)

// DynamoDBStorage implements Storage using AWS DynamoDB. The participant
// hash key is the profile URL itself, which makes every put an upsert by
// the natural key. Badge items hang off the same key with a numeric range
// key preserving extraction order.
type DynamoDBStorage struct {
	client      *dynamodb.DynamoDB
	tablePrefix string
}

type dynamoParticipant struct {
	ProfileURL  string `dynamodbav:"profile_url"`
	FullName    string `dynamodbav:"full_name"`
	Email       string `dynamodbav:"email"`
	TotalBadges int    `dynamodbav:"total_badges"`
	Rank        int    `dynamodbav:"rank"`
	LastEarned  string `dynamodbav:"last_earned,omitempty"`
	LastScraped string `dynamodbav:"last_scraped"`
}

type dynamoBadge struct {
	ProfileURL  string `dynamodbav:"profile_url"`
	Position    int    `dynamodbav:"position"`
	BadgeName   string `dynamodbav:"badge_name"`
	RawDateText string `dynamodbav:"raw_date_text,omitempty"`
	EarnedDate  string `dynamodbav:"earned_date,omitempty"`
}

type dynamoRun struct {
	ID            string `dynamodbav:"id"`
	StartedAt     string `dynamodbav:"started_at"`
	FinishedAt    string `dynamodbav:"finished_at,omitempty"`
	TotalProfiles int    `dynamodbav:"total_profiles"`
	SuccessCount  int    `dynamodbav:"success_count"`
	FailureCount  int    `dynamodbav:"failure_count"`
	Log           string `dynamodbav:"log"`
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	storage := &DynamoDBStorage{
		client:      dynamodb.New(sess),
		tablePrefix: cfg.TablePrefix,
	}
	if err := storage.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure tables exist: %w", err)
	}
	return storage, nil
}

func (d *DynamoDBStorage) participantsTable() string { return d.tablePrefix + "_participants" }
func (d *DynamoDBStorage) badgesTable() string       { return d.tablePrefix + "_badges" }
func (d *DynamoDBStorage) runsTable() string         { return d.tablePrefix + "_runs" }
func (d *DynamoDBStorage) snapshotsTable() string    { return d.tablePrefix + "_leaderboard_snapshot" }

// ensureTables creates the tables if they don't exist (for local testing).
func (d *DynamoDBStorage) ensureTables() error {
	tables := []struct {
		name     string
		hashKey  string
		rangeKey string // numeric when set
	}{
		{name: d.participantsTable(), hashKey: "profile_url"},
		{name: d.badgesTable(), hashKey: "profile_url", rangeKey: "position"},
		{name: d.runsTable(), hashKey: "id"},
		{name: d.snapshotsTable(), hashKey: "id"},
	}

	for _, t := range tables {
		if _, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
			TableName: aws.String(t.name),
		}); err == nil {
			continue // Table already exists
		}

		input := &dynamodb.CreateTableInput{
			TableName: aws.String(t.name),
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String(t.hashKey), KeyType: aws.String("HASH")},
			},
			AttributeDefinitions: []*dynamodb.AttributeDefinition{
				{AttributeName: aws.String(t.hashKey), AttributeType: aws.String("S")},
			},
			BillingMode: aws.String("PAY_PER_REQUEST"),
		}
		if t.rangeKey != "" {
			input.KeySchema = append(input.KeySchema, &dynamodb.KeySchemaElement{
				AttributeName: aws.String(t.rangeKey), KeyType: aws.String("RANGE"),
			})
			input.AttributeDefinitions = append(input.AttributeDefinitions, &dynamodb.AttributeDefinition{
				AttributeName: aws.String(t.rangeKey), AttributeType: aws.String("N"),
			})
		}

		if _, err := d.client.CreateTable(input); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
		if err := d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
			TableName: aws.String(t.name),
		}); err != nil {
			return err
		}
	}
	return nil
}

// UpsertParticipant writes the participant item; PutItem replaces by hash
// key, so this is an upsert on profile URL. The returned ID is the profile
// URL itself.
func (d *DynamoDBStorage) UpsertParticipant(ctx context.Context, p models.ParticipantRecord) (string, error) {
	rank := p.Rank
	if existing, err := d.getParticipant(ctx, p.ProfileURL); err == nil && existing != nil {
		rank = existing.Rank // preserved until the rank pass rewrites it
	}

	item, err := dynamodbattribute.MarshalMap(dynamoParticipant{
		ProfileURL:  p.ProfileURL,
		FullName:    p.FullName,
		Email:       p.Email,
		TotalBadges: p.TotalBadges,
		Rank:        rank,
		LastEarned:  formatDynamoTime(p.LastEarned),
		LastScraped: p.LastScraped.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal participant %s: %w", p.ProfileURL, err)
	}

	if _, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.participantsTable()),
		Item:      item,
	}); err != nil {
		return "", fmt.Errorf("failed to store participant %s: %w", p.ProfileURL, err)
	}
	return p.ProfileURL, nil
}

// ReplaceBadges deletes the participant's badge items and writes the new
// set under ascending position keys.
func (d *DynamoDBStorage) ReplaceBadges(ctx context.Context, participantID string, badges []models.Badge) error {
	old, err := d.queryBadges(ctx, participantID)
	if err != nil {
		return err
	}
	for _, b := range old {
		if _, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(d.badgesTable()),
			Key: map[string]*dynamodb.AttributeValue{
				"profile_url": {S: aws.String(participantID)},
				"position":    {N: aws.String(strconv.Itoa(b.Position))},
			},
		}); err != nil {
			return fmt.Errorf("failed to delete badge: %w", err)
		}
	}

	for i, b := range badges {
		item, err := dynamodbattribute.MarshalMap(dynamoBadge{
			ProfileURL:  participantID,
			Position:    i,
			BadgeName:   b.Name,
			RawDateText: b.RawDate,
			EarnedDate:  formatDynamoTime(b.EarnedAt),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal badge %q: %w", b.Name, err)
		}
		if _, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.badgesTable()),
			Item:      item,
		}); err != nil {
			return fmt.Errorf("failed to store badge %q: %w", b.Name, err)
		}
	}
	return nil
}

// UpdateRanks scans every stored participant, orders them in memory and
// writes back 1-based ranks.
func (d *DynamoDBStorage) UpdateRanks(ctx context.Context) (int, error) {
	participants, err := d.scanParticipants(ctx)
	if err != nil {
		return 0, err
	}

	sort.Slice(participants, func(i, j int) bool {
		return dynamoRankLess(participants[i], participants[j])
	})
	for i, p := range participants {
		if _, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(d.participantsTable()),
			Key: map[string]*dynamodb.AttributeValue{
				"profile_url": {S: aws.String(p.ProfileURL)},
			},
			UpdateExpression: aws.String("SET #r = :rank"),
			ExpressionAttributeNames: map[string]*string{
				"#r": aws.String("rank"),
			},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":rank": {N: aws.String(strconv.Itoa(i + 1))},
			},
		}); err != nil {
			return i, fmt.Errorf("failed to write rank for %s: %w", p.ProfileURL, err)
		}
	}
	return len(participants), nil
}

func dynamoRankLess(a, b dynamoParticipant) bool {
	if a.TotalBadges != b.TotalBadges {
		return a.TotalBadges > b.TotalBadges
	}
	switch {
	case a.LastEarned == "" && b.LastEarned == "":
		return a.ProfileURL < b.ProfileURL
	case a.LastEarned == "":
		return false
	case b.LastEarned == "":
		return true
	}
	if a.LastEarned != b.LastEarned {
		return a.LastEarned < b.LastEarned // RFC3339 sorts chronologically
	}
	return a.ProfileURL < b.ProfileURL
}

// CreateRun inserts the audit item for a new run.
func (d *DynamoDBStorage) CreateRun(ctx context.Context, run *models.RunRecord) error {
	item, err := dynamodbattribute.MarshalMap(dynamoRun{
		ID:            run.ID,
		StartedAt:     run.StartedAt.UTC().Format(time.RFC3339),
		TotalProfiles: run.TotalProfiles,
		Log:           run.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if _, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.runsTable()),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun finalizes the audit item with counts and a status message.
func (d *DynamoDBStorage) CompleteRun(ctx context.Context, runID string, success, failure int, log string) error {
	_, err := d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.runsTable()),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(runID)},
		},
		UpdateExpression: aws.String("SET finished_at = :f, success_count = :s, failure_count = :fc, #l = :log"),
		ExpressionAttributeNames: map[string]*string{
			"#l": aws.String("log"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":f":   {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
			":s":   {N: aws.String(strconv.Itoa(success))},
			":fc":  {N: aws.String(strconv.Itoa(failure))},
			":log": {S: aws.String(log)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", runID, err)
	}
	return nil
}

// SaveSnapshot appends the serialized leaderboard snapshot.
func (d *DynamoDBStorage) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.snapshotsTable()),
		Item: map[string]*dynamodb.AttributeValue{
			"id":         {S: aws.String(uuid.NewString())},
			"created_at": {S: aws.String(time.Now().UTC().Format(time.RFC3339))},
			"snapshot":   {S: aws.String(string(data))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Leaderboard returns stored participants in rank order.
func (d *DynamoDBStorage) Leaderboard(ctx context.Context, limit int) ([]models.ParticipantRecord, error) {
	participants, err := d.scanParticipants(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Rank < participants[j].Rank
	})
	if limit > 0 && len(participants) > limit {
		participants = participants[:limit]
	}

	records := make([]models.ParticipantRecord, 0, len(participants))
	for _, p := range participants {
		records = append(records, models.ParticipantRecord{
			ID:          p.ProfileURL,
			FullName:    p.FullName,
			Email:       p.Email,
			ProfileURL:  p.ProfileURL,
			TotalBadges: p.TotalBadges,
			Rank:        p.Rank,
			LastEarned:  parseDynamoTime(p.LastEarned),
			LastScraped: derefTime(parseDynamoTime(p.LastScraped)),
		})
	}
	return records, nil
}

// RecentRuns returns the newest audit items first.
func (d *DynamoDBStorage) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	result, err := d.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.runsTable()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	var items []dynamoRun
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal runs: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].StartedAt > items[j].StartedAt })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	runs := make([]models.RunRecord, 0, len(items))
	for _, it := range items {
		runs = append(runs, models.RunRecord{
			ID:            it.ID,
			StartedAt:     derefTime(parseDynamoTime(it.StartedAt)),
			FinishedAt:    parseDynamoTime(it.FinishedAt),
			TotalProfiles: it.TotalProfiles,
			SuccessCount:  it.SuccessCount,
			FailureCount:  it.FailureCount,
			Log:           it.Log,
		})
	}
	return runs, nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

func (d *DynamoDBStorage) getParticipant(ctx context.Context, profileURL string) (*dynamoParticipant, error) {
	result, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.participantsTable()),
		Key: map[string]*dynamodb.AttributeValue{
			"profile_url": {S: aws.String(profileURL)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	var p dynamoParticipant
	if err := dynamodbattribute.UnmarshalMap(result.Item, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DynamoDBStorage) scanParticipants(ctx context.Context) ([]dynamoParticipant, error) {
	result, err := d.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.participantsTable()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}
	var participants []dynamoParticipant
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return participants, nil
}

func (d *DynamoDBStorage) queryBadges(ctx context.Context, profileURL string) ([]dynamoBadge, error) {
	result, err := d.client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.badgesTable()),
		KeyConditionExpression: aws.String("profile_url = :url"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":url": {S: aws.String(profileURL)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	var badges []dynamoBadge
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &badges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal badges: %w", err)
	}
	return badges, nil
}

func formatDynamoTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseDynamoTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
