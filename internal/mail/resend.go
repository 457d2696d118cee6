package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendSender sends through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	appURL string
	logger *zap.Logger
}

func NewResendSender(apiKey, from, appURL string, logger *zap.Logger) *ResendSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		appURL: appURL,
		logger: logger,
	}
}

func (s *ResendSender) SendInvitation(ctx context.Context, inv Invitation) error {
	subject, body, err := RenderInvitation(s.appURL, inv)
	if err != nil {
		return err
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{inv.To},
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		s.logger.Error("resend send failed", zap.String("to", inv.To), zap.Error(err))
		return fmt.Errorf("send invitation email: %w", err)
	}

	s.logger.Info("invitation email sent", zap.String("to", inv.To), zap.String("email_id", sent.Id))
	return nil
}

// LogSender only logs the invite link. Used when no mail provider is set.
type LogSender struct {
	AppURL string
	Logger *zap.Logger
}

func (s LogSender) SendInvitation(_ context.Context, inv Invitation) error {
	if s.Logger != nil {
		s.Logger.Info("invitation email skipped, no mail provider configured",
			zap.String("to", inv.To),
			zap.String("link", InviteURL(s.AppURL, inv.Token)))
	}
	return nil
}
