package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// LogNotifier is the fallback Notifier used when the embedding application
// does not wire a mail transport. It reports every send as successful.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	logger := n.Logger
	if logger == nil {
		logger = defLogger{}
	}

	logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	logger.Info("to: %s", to)
	logger.Info("subject: %s", subject)
	logger.Info("%s", textBody)

	return nil
}

// ActivationLink builds the confirmation URL delivered at registration. The
// two path segments are the opaque account id and the token.
func ActivationLink(baseURL string, id uuid.UUID, token string) string {
	return fmt.Sprintf("%s/activate/%s/%s", baseURL, EncodeAccountID(id), token)
}

// PasswordResetLink builds the recovery URL delivered on a reset request.
func PasswordResetLink(baseURL string, id uuid.UUID, token string) string {
	return fmt.Sprintf("%s/password-reset/%s/%s", baseURL, EncodeAccountID(id), token)
}

func activationEmail(account *Account, link string) (subject, textBody, htmlBody string) {
	subject = "Confirm your registration"

	textBody = fmt.Sprintf(
		"Hello %s,\n\nThank you for registering. Follow the link below to activate your account:\n\n%s\n\nThe link is valid for 24 hours. If you did not register, ignore this message.\n",
		account.ShortName(), link,
	)

	htmlBody = fmt.Sprintf(
		`<p>Hello %s,</p><p>Thank you for registering. <a href="%s">Activate your account</a>.</p><p>The link is valid for 24 hours. If you did not register, ignore this message.</p>`,
		account.ShortName(), link,
	)

	return subject, textBody, htmlBody
}

func passwordResetEmail(account *Account, link string) (subject, textBody, htmlBody string) {
	subject = "Password recovery"

	textBody = fmt.Sprintf(
		"Hello %s,\n\nA password reset was requested for your account. Follow the link below to choose a new password:\n\n%s\n\nThe link is valid for 24 hours. If you did not request a reset, ignore this message.\n",
		account.ShortName(), link,
	)

	htmlBody = fmt.Sprintf(
		`<p>Hello %s,</p><p>A password reset was requested for your account. <a href="%s">Choose a new password</a>.</p><p>The link is valid for 24 hours. If you did not request a reset, ignore this message.</p>`,
		account.ShortName(), link,
	)

	return subject, textBody, htmlBody
}
