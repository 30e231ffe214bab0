package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/mailguard/internal/models"
	"github.com/BradenHooton/mailguard/pkg/logger"
)

// Mailer sends a single rendered message to one recipient
type Mailer interface {
	Send(ctx context.Context, to string, msg RenderedMessage) error
}

// sesAPI is the subset of the SES client used by SESMailer
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends notification emails through the outbound relay (AWS SES)
type SESMailer struct {
	client      sesAPI
	fromAddress string
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewSESMailer creates a mailer backed by AWS SES in the given region
func NewSESMailer(ctx context.Context, region, fromAddress string, sendTimeout time.Duration, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESMailer(ses.NewFromConfig(cfg), fromAddress, sendTimeout, logger), nil
}

func newSESMailer(client sesAPI, fromAddress string, sendTimeout time.Duration, logger *slog.Logger) *SESMailer {
	return &SESMailer{
		client:      client,
		fromAddress: fromAddress,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Send delivers msg to one recipient. Each call is bounded by the configured send timeout
// so a hung relay cannot stall the delivery worker.
func (m *SESMailer) Send(ctx context.Context, to string, msg RenderedMessage) error {
	if m.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.sendTimeout)
		defer cancel()
	}

	body := &types.Body{
		Text: &types.Content{
			Data:    aws.String(msg.Text),
			Charset: aws.String("UTF-8"),
		},
	}
	if msg.HTML != "" {
		body.Html = &types.Content{
			Data:    aws.String(msg.HTML),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDeliveryFailure, err)
	}

	m.logger.Info("security notification sent",
		slog.String("recipient", logger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogMailer writes notifications to the log instead of sending them.
// Used when no outbound relay is configured (local development).
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the subject and masked recipient
func (m *LogMailer) Send(ctx context.Context, to string, msg RenderedMessage) error {
	m.logger.Info("security notification (relay disabled)",
		slog.String("recipient", logger.SanitizedEmail(to)),
		slog.String("subject", msg.Subject))
	return nil
}
