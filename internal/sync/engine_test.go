package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/studyjam/leaderboard-scraper/internal/models"
	"github.com/studyjam/leaderboard-scraper/internal/storage"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertParticipant(ctx context.Context, record models.ParticipantRecord) (string, error) {
	args := m.Called(ctx, record)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) ReplaceBadges(ctx context.Context, participantID string, badges []models.Badge) error {
	args := m.Called(ctx, participantID, badges)
	return args.Error(0)
}

func (m *MockStorage) UpdateRanks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) CreateRun(ctx context.Context, run *models.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStorage) CompleteRun(ctx context.Context, runID string, success, failure int, log string) error {
	args := m.Called(ctx, runID, success, failure, log)
	return args.Error(0)
}

func (m *MockStorage) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockStorage) Leaderboard(ctx context.Context, limit int) ([]models.ParticipantRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.ParticipantRecord), args.Error(1)
}

func (m *MockStorage) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.RunRecord), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testEngine(store storage.Storage) *Engine {
	e := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	base := time.Date(2025, time.October, 30, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }
	return e
}

func syncResult(name, url string, badges ...string) models.ScrapeResult {
	r := models.ScrapeResult{
		Participant: models.Participant{Name: name, ProfileURL: url},
	}
	for _, b := range badges {
		r.Badges = append(r.Badges, models.Badge{Name: b})
	}
	return r
}

func TestSync_HappyPath(t *testing.T) {
	store := new(MockStorage)
	results := []models.ScrapeResult{
		syncResult("Ada", "https://p/ada", "Cloud Fundamentals"),
		syncResult("Grace", "https://p/grace"),
	}
	entries := []models.LeaderboardEntry{
		{Participant: models.Participant{ProfileURL: "https://p/ada"}, TotalBadges: 1, Rank: 1},
		{Participant: models.Participant{ProfileURL: "https://p/grace"}, Rank: 2},
	}
	snap := models.Snapshot{TotalParticipants: 2}

	store.On("CreateRun", mock.Anything, mock.AnythingOfType("*models.RunRecord")).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.Anything).Return("id-1", nil)
	store.On("ReplaceBadges", mock.Anything, "id-1", mock.Anything).Return(nil)
	store.On("SaveSnapshot", mock.Anything, snap).Return(nil)
	store.On("UpdateRanks", mock.Anything).Return(2, nil)
	store.On("CompleteRun", mock.Anything, mock.Anything, 2, 0, mock.Anything).Return(nil)

	run, err := testEngine(store).Sync(context.Background(), results, entries, snap)

	require.NoError(t, err)
	assert.Equal(t, 2, run.TotalProfiles)
	assert.Equal(t, 2, run.SuccessCount)
	assert.Equal(t, 0, run.FailureCount)
	assert.NotNil(t, run.FinishedAt)
	assert.NotEmpty(t, run.ID)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "UpsertParticipant", 2)
	store.AssertNumberOfCalls(t, "ReplaceBadges", 2)
}

func TestSync_ParticipantFailureIsIsolated(t *testing.T) {
	store := new(MockStorage)
	results := []models.ScrapeResult{
		syncResult("Ada", "https://p/ada", "Cloud Fundamentals"),
		syncResult("Bad", "https://p/bad", "Broken Badge"),
		syncResult("Grace", "https://p/grace", "Kubernetes Basics"),
	}

	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.MatchedBy(func(r models.ParticipantRecord) bool {
		return r.ProfileURL == "https://p/bad"
	})).Return("", errors.New("duplicate key"))
	store.On("UpsertParticipant", mock.Anything, mock.Anything).Return("id-ok", nil)
	store.On("ReplaceBadges", mock.Anything, "id-ok", mock.Anything).Return(nil)
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	store.On("UpdateRanks", mock.Anything).Return(3, nil)
	store.On("CompleteRun", mock.Anything, mock.Anything, 2, 1, mock.Anything).Return(nil)

	run, err := testEngine(store).Sync(context.Background(), results, nil, models.Snapshot{})

	require.NoError(t, err)
	assert.Equal(t, 2, run.SuccessCount)
	assert.Equal(t, 1, run.FailureCount)
	store.AssertExpectations(t)
}

func TestSync_MissingProfileURLCountsAsFailure(t *testing.T) {
	store := new(MockStorage)
	results := []models.ScrapeResult{
		syncResult("Nameless", ""),
		syncResult("Ada", "https://p/ada"),
	}

	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.Anything).Return("id-1", nil)
	store.On("ReplaceBadges", mock.Anything, "id-1", mock.Anything).Return(nil)
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	store.On("UpdateRanks", mock.Anything).Return(1, nil)
	store.On("CompleteRun", mock.Anything, mock.Anything, 1, 1, mock.Anything).Return(nil)

	run, err := testEngine(store).Sync(context.Background(), results, nil, models.Snapshot{})

	require.NoError(t, err)
	assert.Equal(t, 1, run.SuccessCount)
	assert.Equal(t, 1, run.FailureCount)
	store.AssertNumberOfCalls(t, "UpsertParticipant", 1)
}

func TestSync_CreateRunErrorAborts(t *testing.T) {
	store := new(MockStorage)
	store.On("CreateRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := testEngine(store).Sync(context.Background(), []models.ScrapeResult{syncResult("Ada", "https://p/ada")}, nil, models.Snapshot{})

	require.Error(t, err)
	store.AssertNotCalled(t, "UpsertParticipant", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CompleteRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSync_CancelledContextFailsBatchButCompletesRun(t *testing.T) {
	store := new(MockStorage)
	results := []models.ScrapeResult{
		syncResult("Ada", "https://p/ada"),
		syncResult("Grace", "https://p/grace"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return("id-1", nil)
	store.On("ReplaceBadges", mock.Anything, "id-1", mock.Anything).Return(nil)
	store.On("CompleteRun", mock.Anything, mock.Anything, 0, 2, mock.Anything).Return(nil)

	run, err := testEngine(store).Sync(ctx, results, nil, models.Snapshot{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, run.SuccessCount)
	assert.Equal(t, 2, run.FailureCount)
	assert.Contains(t, run.Log, "failed:")
	store.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "UpdateRanks", mock.Anything)
	store.AssertExpectations(t)
}

func TestSync_SnapshotErrorDoesNotFailRun(t *testing.T) {
	store := new(MockStorage)
	results := []models.ScrapeResult{syncResult("Ada", "https://p/ada")}

	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.Anything).Return("id-1", nil)
	store.On("ReplaceBadges", mock.Anything, "id-1", mock.Anything).Return(nil)
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	store.On("UpdateRanks", mock.Anything).Return(0, errors.New("deadlock"))
	store.On("CompleteRun", mock.Anything, mock.Anything, 1, 0, mock.Anything).Return(nil)

	run, err := testEngine(store).Sync(context.Background(), results, nil, models.Snapshot{})

	require.NoError(t, err)
	assert.Equal(t, 1, run.SuccessCount)
	store.AssertExpectations(t)
}

func TestSync_RecordCarriesLastEarnedFromEntries(t *testing.T) {
	store := new(MockStorage)
	earned := time.Date(2025, time.October, 21, 0, 0, 0, 0, time.UTC)
	results := []models.ScrapeResult{syncResult("Ada", "https://p/ada", "Cloud Fundamentals")}
	entries := []models.LeaderboardEntry{
		{Participant: models.Participant{ProfileURL: "https://p/ada"}, TotalBadges: 1, LastEarned: &earned, Rank: 1},
	}

	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("UpsertParticipant", mock.Anything, mock.MatchedBy(func(r models.ParticipantRecord) bool {
		return r.LastEarned != nil && r.LastEarned.Equal(earned) && r.TotalBadges == 1
	})).Return("id-1", nil)
	store.On("ReplaceBadges", mock.Anything, "id-1", mock.Anything).Return(nil)
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(nil)
	store.On("UpdateRanks", mock.Anything).Return(1, nil)
	store.On("CompleteRun", mock.Anything, mock.Anything, 1, 0, mock.Anything).Return(nil)

	_, err := testEngine(store).Sync(context.Background(), results, entries, models.Snapshot{})

	require.NoError(t, err)
	store.AssertExpectations(t)
}
