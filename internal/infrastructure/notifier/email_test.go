package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsprouts/daycare-hub/internal/domain/notification"
	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func testNotifier(client sesClient) *EmailNotifier {
	cfg := DefaultConfig()
	cfg.Sender = "noreply@brightsprouts.example"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newEmailNotifier(client, cfg, logger)
}

func TestEmailNotifier_Send(t *testing.T) {
	fake := &fakeSES{}
	n := testNotifier(fake)

	res := n.Send(context.Background(), notification.Notification{
		Recipients: []string{"parent@example.com"},
		Subject:    "Pickup Notification",
		HTMLBody:   "<p>hello</p>",
	})

	require.True(t, res.Success)
	assert.Equal(t, "msg-1", res.MessageID)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "noreply@brightsprouts.example", aws.ToString(in.Source))
	assert.Equal(t, []string{"parent@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Pickup Notification", aws.ToString(in.Message.Subject.Data))
	assert.NotNil(t, in.Message.Body.Html)
	assert.Nil(t, in.Message.Body.Text)
}

func TestEmailNotifier_NoRecipients(t *testing.T) {
	fake := &fakeSES{}
	n := testNotifier(fake)

	res := n.Send(context.Background(), notification.Notification{Subject: "x"})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, shared.ErrNoRecipients)
	assert.Empty(t, fake.inputs)
}

func TestEmailNotifier_BreakerOpensAfterFailures(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	n := testNotifier(fake)

	msg := notification.Notification{
		Recipients: []string{"parent@example.com"},
		Subject:    "Pickup Notification",
		TextBody:   "hello",
	}

	for i := 0; i < 3; i++ {
		res := n.Send(context.Background(), msg)
		assert.ErrorIs(t, res.Error, shared.ErrNotificationFailed)
	}
	require.Len(t, fake.inputs, 3)

	// Breaker is open now; the SES client is not called again.
	res := n.Send(context.Background(), msg)
	assert.False(t, res.Success)
	assert.Len(t, fake.inputs, 3)
}
