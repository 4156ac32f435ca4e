// Package notifier implements outbound notification delivery. The only
// channel is email via Amazon SES; guardians of never-picked-up children get
// a pickup reminder at the daily cutoff.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/brightsprouts/daycare-hub/internal/domain/notification"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
	"github.com/brightsprouts/daycare-hub/pkg/circuitbreaker"
)

// Config holds SES delivery settings.
type Config struct {
	// Region is the AWS region for SES.
	Region string

	// Sender is the verified From address.
	Sender string

	// SendTimeout bounds a single SES call. One slow send must not stall
	// the whole reconciliation pass.
	SendTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Region:      "eu-west-1",
		SendTimeout: 10 * time.Second,
	}
}

// sesClient is the slice of the SES API used here; tests substitute a fake.
type sesClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailNotifier implements notification.Notifier on Amazon SES. Sends are
// wrapped in a circuit breaker so a broken channel fails fast instead of
// burning the per-student timeout on every guardian.
type EmailNotifier struct {
	client  sesClient
	config  Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewEmailNotifier creates a notifier using the default AWS credential chain.
func NewEmailNotifier(ctx context.Context, cfg Config, logger *slog.Logger) (*EmailNotifier, error) {
	if cfg.Sender == "" {
		return nil, errors.New("notifier: sender address is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("notifier: failed to load AWS config: %w", err)
	}

	return newEmailNotifier(ses.NewFromConfig(awsCfg), cfg, logger), nil
}

func newEmailNotifier(client sesClient, cfg Config, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		client: client,
		config: cfg,
		logger: logger,
	}
	n.breaker = circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("notifier breaker state change",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return n
}

// Send delivers one notification to all its recipients in a single SES call.
func (n *EmailNotifier) Send(ctx context.Context, msg notification.Notification) notification.DeliveryResult {
	if len(msg.Recipients) == 0 {
		return notification.DeliveryResult{Error: shared.ErrNoRecipients}
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.SendTimeout)
	defer cancel()

	var messageID string
	err := n.breaker.Execute(ctx, func(ctx context.Context) error {
		out, err := n.client.SendEmail(ctx, n.buildInput(msg))
		if err != nil {
			return err
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	})
	if err != nil {
		n.logger.Error("email delivery failed",
			slog.Int("recipients", len(msg.Recipients)),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return notification.DeliveryResult{Error: fmt.Errorf("%w: %v", shared.ErrNotificationFailed, err)}
	}

	n.logger.Info("email delivered",
		slog.Int("recipients", len(msg.Recipients)),
		slog.String("message_id", messageID),
	)
	return notification.DeliveryResult{
		Success:     true,
		MessageID:   messageID,
		DeliveredAt: time.Now().UTC(),
	}
}

func (n *EmailNotifier) buildInput(msg notification.Notification) *ses.SendEmailInput {
	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}
	if msg.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")}
	}

	return &ses.SendEmailInput{
		Source: aws.String(n.config.Sender),
		Destination: &types.Destination{
			ToAddresses: msg.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
}
