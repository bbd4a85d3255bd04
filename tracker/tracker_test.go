package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/anomaly"
	"go.pilab.hu/sentinel/internal/fingerprint"
)

// --- Mock implementations ---

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) GetOrCreate(ctx context.Context, candidate *domain.SessionRecord) (*domain.SessionRecord, bool, error) {
	args := m.Called(ctx, candidate)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.SessionRecord), args.Bool(1), args.Error(2)
}

func (m *MockSessionStore) Update(ctx context.Context, rec *domain.SessionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type MockAttemptRecorder struct {
	mock.Mock
}

func (m *MockAttemptRecorder) Record(ctx context.Context, attempt *domain.LoginAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

type MockSessionCounter struct {
	mock.Mock
}

func (m *MockSessionCounter) CountTouchedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionCounter) CountConcurrentActive(ctx context.Context, userID string, since time.Time, excludeIP string) (int64, error) {
	args := m.Called(ctx, userID, since, excludeIP)
	return args.Get(0).(int64), args.Error(1)
}

type MockAttemptCounter struct {
	mock.Mock
}

func (m *MockAttemptCounter) CountFailedSince(ctx context.Context, userID, ip string, since time.Time) (int64, error) {
	args := m.Called(ctx, userID, ip, since)
	return args.Get(0).(int64), args.Error(1)
}

type MockAlertSink struct {
	mock.Mock
}

func (m *MockAlertSink) Send(ctx context.Context, event domain.SecurityAlertEvent, operators []domain.Operator) error {
	args := m.Called(ctx, event, operators)
	return args.Error(0)
}

type MockOperatorDirectory struct {
	mock.Mock
}

func (m *MockOperatorDirectory) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Operator), args.Error(1)
}

// --- Fixture ---

// noon keeps the off-hours check quiet.
var noon = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *MockSessionStore
	attempts  *MockAttemptRecorder
	counters  *MockSessionCounter
	failures  *MockAttemptCounter
	sink      *MockAlertSink
	directory *MockOperatorDirectory
	tracker   *Tracker
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		store:     new(MockSessionStore),
		attempts:  new(MockAttemptRecorder),
		counters:  new(MockSessionCounter),
		failures:  new(MockAttemptCounter),
		sink:      new(MockAlertSink),
		directory: new(MockOperatorDirectory),
	}
	classifier := anomaly.NewClassifier(f.counters, f.failures, anomaly.DefaultThresholds())
	f.tracker = New(
		fingerprint.NewExtractor(fingerprint.DefaultConfig()),
		f.store,
		f.attempts,
		classifier,
		f.sink,
		f.directory,
		WithClock(func() time.Time { return now }),
	)
	return f
}

func (f *fixture) quietCounters() {
	f.counters.On("CountTouchedSince", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.counters.On("CountConcurrentActive", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	f.failures.On("CountFailedSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
}

func trackedRequest() fingerprint.Request {
	return fingerprint.Request{
		Principal:  &domain.Principal{ID: "user-1", Username: "alice", Role: "client"},
		Path:       "/api/invoices",
		SessionID:  "abc123",
		RemoteAddr: "1.2.3.4:51234",
		UserAgent:  "Mozilla/5.0",
	}
}

func existingRecord() *domain.SessionRecord {
	expires := noon.Add(7 * 24 * time.Hour)
	return &domain.SessionRecord{
		ID:           "s1",
		SessionKey:   "abc123",
		UserID:       "user-1",
		Username:     "alice",
		IPAddress:    "1.2.3.4",
		UserAgent:    "Mozilla/5.0",
		Status:       domain.SessionStatusActive,
		CreatedAt:    noon.Add(-time.Hour),
		LastActivity: noon.Add(-time.Minute),
		ExpiresAt:    &expires,
	}
}

// --- Tests ---

func TestTrack_UntrackedRequests(t *testing.T) {
	f := newFixture(noon)
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		req := trackedRequest()
		req.Principal = nil
		f.tracker.Track(ctx, req)
	})

	t.Run("static asset", func(t *testing.T) {
		req := trackedRequest()
		req.Path = "/static/app.css"
		f.tracker.Track(ctx, req)
	})

	f.store.AssertNotCalled(t, "GetOrCreate")
}

func TestTrack_CreatesRecordOnFirstActivity(t *testing.T) {
	f := newFixture(noon)

	var created *domain.SessionRecord
	f.store.On("GetOrCreate", mock.Anything, mock.AnythingOfType("*domain.SessionRecord")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*domain.SessionRecord)
		}).
		Return(nil, true, nil).Once()

	f.tracker.Track(context.Background(), trackedRequest())

	require.NotNil(t, created)
	assert.Equal(t, "abc123", created.SessionKey)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, domain.SessionStatusActive, created.Status)
	assert.Equal(t, noon, created.CreatedAt)
	assert.Equal(t, noon, created.LastActivity)
	require.NotNil(t, created.ExpiresAt)
	assert.Equal(t, noon.Add(DefaultSessionTTL), *created.ExpiresAt)

	// First observation is never classified or updated further.
	f.store.AssertNotCalled(t, "Update")
	f.sink.AssertNotCalled(t, "Send")
}

func TestTrack_BumpsActivityOnExistingRecord(t *testing.T) {
	f := newFixture(noon)
	f.quietCounters()

	rec := existingRecord()
	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(rec, false, nil)

	var updated *domain.SessionRecord
	f.store.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*domain.SessionRecord) }).
		Return(nil)

	f.tracker.Track(context.Background(), trackedRequest())

	require.NotNil(t, updated)
	assert.Equal(t, noon, updated.LastActivity)
	assert.Equal(t, domain.SessionStatusActive, updated.Status)
	assert.Empty(t, updated.TerminationReason)
	f.sink.AssertNotCalled(t, "Send")
}

func TestTrack_ReactivatesTerminatedSession(t *testing.T) {
	f := newFixture(noon)
	f.quietCounters()

	rec := existingRecord()
	terminatedAt := noon.Add(-31 * 24 * time.Hour)
	rec.Status = domain.SessionStatusTerminated
	rec.IsTerminated = true
	rec.TerminatedAt = &terminatedAt
	rec.TerminationReason = "Admin terminated"

	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(rec, false, nil)

	var updated *domain.SessionRecord
	f.store.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*domain.SessionRecord) }).
		Return(nil)

	f.tracker.Track(context.Background(), trackedRequest())

	require.NotNil(t, updated)
	assert.Equal(t, domain.SessionStatusActive, updated.Status)
	assert.False(t, updated.IsTerminated)
	assert.Nil(t, updated.TerminatedAt)
	assert.Empty(t, updated.TerminationReason)
}

func TestTrack_FlagsSuspiciousAndAlerts(t *testing.T) {
	f := newFixture(noon)

	rec := existingRecord() // stored IP 1.2.3.4
	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(rec, false, nil)

	var updated *domain.SessionRecord
	f.store.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*domain.SessionRecord) }).
		Return(nil)

	operators := []domain.Operator{{ID: "op-1", Username: "root"}}
	f.directory.On("ListOperators", mock.Anything).Return(operators, nil)

	var event domain.SecurityAlertEvent
	f.sink.On("Send", mock.Anything, mock.Anything, operators).
		Run(func(args mock.Arguments) { event = args.Get(1).(domain.SecurityAlertEvent) }).
		Return(nil)

	req := trackedRequest()
	req.RemoteAddr = "9.9.9.9:443" // different /16, geographic anomaly

	f.tracker.Track(context.Background(), req)

	require.NotNil(t, updated)
	assert.Equal(t, domain.SessionStatusSuspicious, updated.Status)
	assert.Equal(t, "Unusual geographic login: IP changed from 1.2.3.4 to 9.9.9.9", updated.TerminationReason)
	// The stored fingerprint is overwritten after classification.
	assert.Equal(t, "9.9.9.9", updated.IPAddress)

	assert.Equal(t, "s1", event.SessionID)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "9.9.9.9", event.IPAddress)
	assert.Equal(t, updated.TerminationReason, event.Reason)
	assert.Equal(t, noon, event.Timestamp)
}

func TestTrack_AlertSinkFailureDoesNotBlockTransition(t *testing.T) {
	f := newFixture(noon)

	rec := existingRecord()
	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(rec, false, nil)

	var updated *domain.SessionRecord
	f.store.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*domain.SessionRecord) }).
		Return(nil)

	f.directory.On("ListOperators", mock.Anything).Return([]domain.Operator{{ID: "op-1"}}, nil)
	f.sink.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sink down"))

	req := trackedRequest()
	req.RemoteAddr = "9.9.9.9:443"
	f.tracker.Track(context.Background(), req)

	require.NotNil(t, updated)
	assert.Equal(t, domain.SessionStatusSuspicious, updated.Status)
}

func TestTrack_StoreFaultIsSwallowed(t *testing.T) {
	f := newFixture(noon)
	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(nil, false, errors.New("store down"))

	// Must not panic and must not attempt further writes.
	f.tracker.Track(context.Background(), trackedRequest())

	f.store.AssertNotCalled(t, "Update")
	f.sink.AssertNotCalled(t, "Send")
}

func TestTrack_MonotonicLastActivity(t *testing.T) {
	clock := noon
	f := newFixture(noon)
	f.quietCounters()
	f.tracker.now = func() time.Time { return clock }

	rec := existingRecord()
	f.store.On("GetOrCreate", mock.Anything, mock.Anything).Return(rec, false, nil)

	var last time.Time
	f.store.On("Update", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = args.Get(1).(*domain.SessionRecord).LastActivity }).
		Return(nil)

	for i := 1; i <= 3; i++ {
		clock = noon.Add(time.Duration(i) * time.Second)
		f.tracker.Track(context.Background(), trackedRequest())
	}

	assert.Equal(t, noon.Add(3*time.Second), last)
}

func TestRecordLoginFailure(t *testing.T) {
	f := newFixture(noon)

	var attempt *domain.LoginAttempt
	f.attempts.On("Record", mock.Anything, mock.AnythingOfType("*domain.LoginAttempt")).
		Run(func(args mock.Arguments) { attempt = args.Get(1).(*domain.LoginAttempt) }).
		Return(nil)

	f.tracker.RecordLoginFailure(context.Background(), "user-1", "alice", "1.2.3.4", "Mozilla/5.0")

	require.NotNil(t, attempt)
	assert.False(t, attempt.Succeeded)
	assert.Equal(t, "user-1", attempt.UserID)
	assert.Equal(t, "1.2.3.4", attempt.IPAddress)
	assert.Equal(t, noon, attempt.CreatedAt)
}
