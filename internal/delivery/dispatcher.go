package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/pkg/mail"
)

const defaultDispatchTimeout = 10 * time.Second

// Dispatcher routes outbound one-time codes and reset links to the right
// channel. Every dispatch runs under a bounded timeout so a slow provider
// cannot hold a request handler open.
type Dispatcher struct {
	mailer  mail.Mailer
	sms     SMSSender
	timeout time.Duration
}

// NewDispatcher wires the email and SMS senders together. Either sender may be
// nil; dispatching to a missing channel fails with a delivery error.
func NewDispatcher(mailer mail.Mailer, sms SMSSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{mailer: mailer, sms: sms, timeout: timeout}
}

// ChannelFor picks the delivery channel from the shape of the address.
func ChannelFor(address string) models.OTPChannel {
	if strings.Contains(address, "@") {
		return models.ChannelEmail
	}
	return models.ChannelSMS
}

// SendOTP delivers the plaintext code out-of-band. The code never appears in
// any API response or log line; this is its only exit from the process.
func (d *Dispatcher) SendOTP(ctx context.Context, channel models.OTPChannel, address, code string, window time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch channel {
	case models.ChannelEmail:
		if d.mailer == nil {
			return errors.New("delivery: no mailer configured")
		}
		minutes := int(window.Minutes())
		msg := mail.Message{
			To:      []string{address},
			Subject: "Your PathXpert Verification Code",
			Body: fmt.Sprintf(
				"Hello,\n\nYour verification code is: %s\n\nThis code is valid for %d minutes.\n\nIf you didn't request this, no action is needed.\n",
				code, minutes,
			),
		}
		return d.mailer.Send(ctx, msg)
	case models.ChannelSMS:
		if d.sms == nil {
			return errors.New("delivery: no sms sender configured")
		}
		return d.sms.Send(ctx, address, fmt.Sprintf("Your PathXpert OTP is %s", code))
	default:
		return fmt.Errorf("delivery: unknown channel %q", channel)
	}
}

// SendResetLink emails a password-reset link. Reset links are email only.
func (d *Dispatcher) SendResetLink(ctx context.Context, email, link string) error {
	if d.mailer == nil {
		return errors.New("delivery: no mailer configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := mail.Message{
		To:      []string{email},
		Subject: "Reset Your PathXpert Password",
		Body: fmt.Sprintf(
			"Hello,\n\nReset your password using this link:\n%s\n\nThe link is valid for a limited time. If you didn't request this, you can ignore this email.\n",
			link,
		),
	}
	return d.mailer.Send(ctx, msg)
}
