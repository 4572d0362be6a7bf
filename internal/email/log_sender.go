package email

import (
	"context"

	"github.com/prodtrack/prodtrack-api/internal/logging"
)

// LogSender writes reset links to the log instead of mailing them. It is
// selected when no SMTP host is configured.
type LogSender struct {
	frontendURL string
}

func NewLogSender(frontendURL string) *LogSender {
	return &LogSender{frontendURL: frontendURL}
}

func (s *LogSender) SendPasswordResetEmail(ctx context.Context, toEmail, token string) error {
	logging.GetLoggerFromContext(ctx).Info("password reset link (smtp disabled)",
		"email", toEmail,
		"link", ResetLink(s.frontendURL, token),
	)
	return nil
}
