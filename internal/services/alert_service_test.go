package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/internal/services"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

func newTestDispatcher(store services.AlertStore, queue services.Enqueuer, settings services.AlertSettings) *services.AlertDispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return services.NewAlertDispatcher(store, queue, settings, log, logger.NewAuditLogger(log))
}

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		score int
		want  models.Severity
	}{
		{0, models.SeverityLow},
		{39, models.SeverityLow},
		{40, models.SeverityMedium},
		{59, models.SeverityMedium},
		{60, models.SeverityHigh},
		{79, models.SeverityHigh},
		{80, models.SeverityCritical},
		{150, models.SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, models.SeverityForScore(tt.score), "score %d", tt.score)
	}
}

func TestAlertDispatcher_Raise_PersistsAndQueues(t *testing.T) {
	var created *models.SecurityAlert
	store := &services.MockAlertRepository{
		CreateFunc: func(ctx context.Context, alert *models.SecurityAlert) error {
			created = alert
			return nil
		},
	}
	queue := &services.MockEnqueuer{}
	d := newTestDispatcher(store, queue, &services.MockAlertSettings{Enabled: true})

	id, err := d.Raise(context.Background(), "user-1", services.NewTestAssessment("user-1", 65, true))

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, created.ID, id)
	assert.Equal(t, models.SeverityHigh, created.Severity)
	assert.Equal(t, models.AlertTypeSuspiciousLogin, created.AlertType)
	assert.Equal(t, "Suspicious IP characteristics: Tor exit node", created.Description)
	assert.Equal(t, 65, created.Data["risk_score"])
	assert.Equal(t, "record-1", created.Data["login_record_id"])
	assert.Equal(t, []string{"ip_reputation"}, created.Data["anomalies"])
	assert.False(t, created.IsResolved)

	require.Len(t, queue.Jobs, 1)
	assert.Equal(t, id, queue.Jobs[0].Alert.ID)
	assert.Equal(t, "alice@example.com", queue.Jobs[0].UserEmail)
}

func TestAlertDispatcher_Raise_NotificationEligibility(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		settings *services.MockAlertSettings
		queued   bool
	}{
		{"low below default floor", 35, &services.MockAlertSettings{Enabled: true}, false},
		{"medium meets default floor", 45, &services.MockAlertSettings{Enabled: true}, true},
		{"critical with notifications off", 95, &services.MockAlertSettings{Enabled: false}, false},
		{"high below critical floor", 70, &services.MockAlertSettings{Enabled: true, Floor: models.SeverityCritical}, false},
		{"low with low floor", 10, &services.MockAlertSettings{Enabled: true, Floor: models.SeverityLow}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &services.MockEnqueuer{}
			d := newTestDispatcher(&services.MockAlertRepository{}, queue, tt.settings)

			id, err := d.Raise(context.Background(), "user-1", services.NewTestAssessment("user-1", tt.score, true))

			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Equal(t, tt.queued, len(queue.Jobs) == 1)
		})
	}
}

func TestAlertDispatcher_Raise_QueueFullKeepsAlert(t *testing.T) {
	queue := &services.MockEnqueuer{
		EnqueueFunc: func(job services.NotificationJob) error { return models.ErrQueueFull },
	}
	d := newTestDispatcher(&services.MockAlertRepository{}, queue, &services.MockAlertSettings{Enabled: true})

	id, err := d.Raise(context.Background(), "user-1", services.NewTestAssessment("user-1", 85, true))

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Empty(t, queue.Jobs)
}

func TestAlertDispatcher_Raise_PersistenceFailure(t *testing.T) {
	store := &services.MockAlertRepository{
		CreateFunc: func(ctx context.Context, alert *models.SecurityAlert) error {
			return errors.New("connection refused")
		},
	}
	queue := &services.MockEnqueuer{}
	d := newTestDispatcher(store, queue, &services.MockAlertSettings{Enabled: true})

	id, err := d.Raise(context.Background(), "user-1", services.NewTestAssessment("user-1", 85, true))

	assert.ErrorIs(t, err, models.ErrPersistenceFailure)
	assert.Empty(t, id)
	assert.Empty(t, queue.Jobs)
}

func TestAlertDispatcher_RaiseIfSuspicious(t *testing.T) {
	creates := 0
	store := &services.MockAlertRepository{
		CreateFunc: func(ctx context.Context, alert *models.SecurityAlert) error {
			creates++
			return nil
		},
	}
	d := newTestDispatcher(store, &services.MockEnqueuer{}, &services.MockAlertSettings{Enabled: true})

	id, raised, err := d.RaiseIfSuspicious(context.Background(), "user-1", services.NewTestAssessment("user-1", 20, false))
	require.NoError(t, err)
	assert.False(t, raised)
	assert.Empty(t, id)
	assert.Equal(t, 0, creates)

	id, raised, err = d.RaiseIfSuspicious(context.Background(), "user-1", services.NewTestAssessment("user-1", 55, true))
	require.NoError(t, err)
	assert.True(t, raised)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, creates)
}

// resolvingStore mimics the repository's resolve-once semantics
type resolvingStore struct {
	services.MockAlertRepository
	mu    sync.Mutex
	alert *models.SecurityAlert
}

func (s *resolvingStore) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) (*models.SecurityAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil || s.alert.ID != id {
		return nil, models.ErrNotFound
	}
	if s.alert.IsResolved {
		return nil, models.ErrAlertAlreadyResolved
	}
	s.alert.IsResolved = true
	s.alert.ResolvedBy = &resolvedBy
	s.alert.ResolvedAt = &at
	if notes != "" {
		s.alert.ResolutionNotes = &notes
	}
	copied := *s.alert
	return &copied, nil
}

func TestAlertDispatcher_Resolve_IsTerminal(t *testing.T) {
	store := &resolvingStore{alert: services.NewTestAlert("alert-1", "user-1", models.SeverityHigh)}
	d := newTestDispatcher(store, &services.MockEnqueuer{}, &services.MockAlertSettings{Enabled: true})

	resolved, err := d.Resolve(context.Background(), "alert-1", "admin-1", "  false positive  ")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedBy)
	assert.True(t, resolved.IsResolved)
	assert.Equal(t, "admin-1", *resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolutionNotes)
	assert.Equal(t, "false positive", *resolved.ResolutionNotes)
	firstResolvedAt := *resolved.ResolvedAt

	again, err := d.Resolve(context.Background(), "alert-1", "admin-2", "")
	assert.ErrorIs(t, err, models.ErrAlertAlreadyResolved)
	assert.Nil(t, again)

	assert.Equal(t, "admin-1", *store.alert.ResolvedBy)
	assert.Equal(t, firstResolvedAt, *store.alert.ResolvedAt)
}

func TestAlertDispatcher_Resolve_NotFound(t *testing.T) {
	d := newTestDispatcher(&services.MockAlertRepository{}, &services.MockEnqueuer{}, &services.MockAlertSettings{})

	_, err := d.Resolve(context.Background(), "missing", "admin-1", "")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
