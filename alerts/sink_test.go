package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/sentinel/domain"
)

type recordingNotifications struct {
	created []*domain.Notification
	err     error
}

func (r *recordingNotifications) Create(_ context.Context, n *domain.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, n)
	return nil
}

func (r *recordingNotifications) ListRecentSecurityAlerts(context.Context, time.Time, int) ([]*domain.Notification, error) {
	return nil, nil
}

func alertEvent() domain.SecurityAlertEvent {
	return domain.SecurityAlertEvent{
		SessionID: "s1",
		UserID:    "user-1",
		Username:  "alice",
		IPAddress: "9.9.9.9",
		UserAgent: "Mozilla/5.0",
		Reason:    "IP address changed from 1.2.3.4 to 9.9.9.9",
		Location:  "External Network",
		Timestamp: time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotificationSink_OneNotificationPerOperator(t *testing.T) {
	repo := &recordingNotifications{}
	sink := NewNotificationSink(repo)

	operators := []domain.Operator{{ID: "op-1"}, {ID: "op-2"}}
	require.NoError(t, sink.Send(context.Background(), alertEvent(), operators))

	require.Len(t, repo.created, 2)
	first := repo.created[0]
	assert.Equal(t, "op-1", first.UserID)
	assert.Equal(t, domain.NotificationTypeSecurityAlert, first.Type)
	assert.Equal(t, domain.NotificationPriorityHigh, first.Priority)
	assert.Equal(t, "Security Alert", first.Title)
	assert.Equal(t, "Suspicious activity detected for user alice: IP address changed from 1.2.3.4 to 9.9.9.9", first.Message)
	assert.Equal(t, "s1", first.Data["session_id"])
	assert.Equal(t, "2024-05-14T12:00:00Z", first.Data["timestamp"])
	assert.Equal(t, "op-2", repo.created[1].UserID)
}

func TestNotificationSink_NoOperators(t *testing.T) {
	repo := &recordingNotifications{}
	sink := NewNotificationSink(repo)

	require.NoError(t, sink.Send(context.Background(), alertEvent(), nil))
	assert.Empty(t, repo.created)
}

type flakySink struct {
	calls int
	err   error
}

func (s *flakySink) Send(context.Context, domain.SecurityAlertEvent, []domain.Operator) error {
	s.calls++
	return s.err
}

func TestComposite_FailingSinkDoesNotStarveOthers(t *testing.T) {
	broken := &flakySink{err: errors.New("sink down")}
	healthy := &flakySink{}
	composite := NewComposite(broken, healthy)

	err := composite.Send(context.Background(), alertEvent(), []domain.Operator{{ID: "op-1"}})
	assert.NoError(t, err)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}
