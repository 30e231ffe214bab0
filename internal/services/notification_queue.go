package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/mailguard/internal/config"
	"github.com/BradenHooton/mailguard/internal/metrics"
	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

// MinDeliverySpacing is the lower bound on the gap between two sends to the mail relay
const MinDeliverySpacing = time.Second

// NotificationJob is one alert awaiting delivery to the administrators
type NotificationJob struct {
	Alert     models.SecurityAlert
	UserEmail string
}

// AdminLister returns the current notification recipients
type AdminLister interface {
	ListActiveAdministrators(ctx context.Context) ([]models.Administrator, error)
}

// TemplateSource returns the alert template to render with
type TemplateSource interface {
	AlertTemplate(ctx context.Context) AlertTemplate
}

// NotificationQueue is a bounded FIFO drained by a single worker. Sends are spaced by at
// least MinDeliverySpacing. Delivery is best effort: failed sends are logged and skipped,
// and jobs still queued when the worker stops are dropped.
type NotificationQueue struct {
	jobs       chan NotificationJob
	admins     AdminLister
	mailer     Mailer
	templates  TemplateSource
	consoleURL string
	spacing    time.Duration
	logger     *slog.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	lastSend time.Time
}

// NewNotificationQueue creates a queue; call Serve (directly or under a supervisor) to start delivery
func NewNotificationQueue(admins AdminLister, mailer Mailer, templates TemplateSource, cfg config.NotificationConfig, logger *slog.Logger) *NotificationQueue {
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	spacing := cfg.Spacing
	if spacing < MinDeliverySpacing {
		spacing = MinDeliverySpacing
	}

	return &NotificationQueue{
		jobs:       make(chan NotificationJob, size),
		admins:     admins,
		mailer:     mailer,
		templates:  templates,
		consoleURL: cfg.ConsoleURL,
		spacing:    spacing,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Enqueue adds a job without blocking. Returns ErrQueueFull when the buffer is full.
func (q *NotificationQueue) Enqueue(job NotificationJob) error {
	select {
	case q.jobs <- job:
		metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		return models.ErrQueueFull
	}
}

// Len returns the number of jobs waiting
func (q *NotificationQueue) Len() int {
	return len(q.jobs)
}

// Serve implements suture.Service. It delivers jobs one at a time in enqueue order
// until ctx is canceled.
func (q *NotificationQueue) Serve(ctx context.Context) error {
	q.logger.Info("notification worker started", slog.Duration("spacing", q.spacing))

	for {
		select {
		case <-ctx.Done():
			q.drop(0)
			return ctx.Err()
		case job := <-q.jobs:
			if ctx.Err() != nil {
				q.drop(1)
				return ctx.Err()
			}
			metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))
			q.deliver(ctx, job)
		}
	}
}

func (q *NotificationQueue) drop(taken int) {
	if dropped := len(q.jobs) + taken; dropped > 0 {
		q.logger.Warn("notification worker stopped with undelivered jobs",
			slog.Int("dropped", dropped))
	}
}

// String implements fmt.Stringer for supervisor logs
func (q *NotificationQueue) String() string {
	return "notification-worker"
}

func (q *NotificationQueue) deliver(ctx context.Context, job NotificationJob) {
	admins, err := q.admins.ListActiveAdministrators(ctx)
	if err != nil {
		q.logger.Error("failed to list administrators, alert notification skipped",
			slog.String("alert_id", job.Alert.ID),
			slog.String("error", err.Error()))
		return
	}
	if len(admins) == 0 {
		q.logger.Warn("no active administrators to notify", slog.String("alert_id", job.Alert.ID))
		return
	}

	msg := q.render(ctx, job)

	for _, admin := range admins {
		if err := q.pace(ctx); err != nil {
			return
		}

		err := q.mailer.Send(ctx, admin.Email, msg)
		q.lastSend = q.now()
		if err != nil {
			metrics.NotificationDeliveries.WithLabelValues("failure").Inc()
			q.logger.Error("alert notification delivery failed",
				slog.String("alert_id", job.Alert.ID),
				slog.String("recipient", logger.SanitizedEmail(admin.Email)),
				slog.String("error", err.Error()))
			continue
		}
		metrics.NotificationDeliveries.WithLabelValues("success").Inc()
	}
}

func (q *NotificationQueue) render(ctx context.Context, job NotificationJob) RenderedMessage {
	values := alertValues(&job.Alert, job.UserEmail, q.consoleURL)

	msg, err := q.templates.AlertTemplate(ctx).Render(values)
	if err != nil {
		q.logger.Error("malformed alert template, sending plain text",
			slog.String("alert_id", job.Alert.ID),
			slog.String("error", err.Error()))
		return RenderPlainText(values)
	}
	return msg
}

// pace blocks until the spacing since the previous send has elapsed
func (q *NotificationQueue) pace(ctx context.Context) error {
	if q.lastSend.IsZero() {
		return nil
	}
	wait := q.spacing - q.now().Sub(q.lastSend)
	if wait <= 0 {
		return nil
	}
	return q.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
