// Package mailer sends outbound mail over SMTP and records every attempt
// as an OutboundEmail row, so delivery status is visible without blocking
// the workflow.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
	apperrors "github.com/spec-kit/servicedesk/pkg/util"
)

// OutboundStore persists outbound email rows.
type OutboundStore interface {
	Create(ctx context.Context, email *domain.OutboundEmail) error
}

// sendFunc matches smtp.SendMail; swappable in tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPTransport delivers mail through a plain SMTP relay.
type SMTPTransport struct {
	cfg      config.SMTPConfig
	outbound OutboundStore
	logger   *zap.Logger
	send     sendFunc
}

// NewSMTPTransport constructs the transport.
func NewSMTPTransport(cfg config.SMTPConfig, outbound OutboundStore, logger *zap.Logger) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, outbound: outbound, logger: logger, send: smtp.SendMail}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// sanitizeHeader strips CRLF so user-supplied subjects cannot inject headers.
func sanitizeHeader(input string) string {
	input = strings.ReplaceAll(input, "\r", "")
	input = strings.ReplaceAll(input, "\n", "")
	return strings.TrimSpace(input)
}

func validAddress(addr string) bool {
	return emailPattern.MatchString(strings.TrimSpace(addr))
}

// Send delivers the message and records an OutboundEmail row with the
// outcome. A failed delivery is recorded and returned; the caller decides
// whether to swallow it.
func (t *SMTPTransport) Send(ctx context.Context, to []string, subject, body string, ticketID *string) error {
	if t.cfg.Host == "" {
		return apperrors.NewConfigError("smtp host is not configured")
	}
	from := sanitizeHeader(t.cfg.From)
	if !validAddress(from) {
		return apperrors.NewConfigError("smtp from address is not configured")
	}

	recipients := make([]string, 0, len(to))
	for _, addr := range to {
		addr = sanitizeHeader(addr)
		if !validAddress(addr) {
			return apperrors.NewValidationError("to", fmt.Sprintf("invalid recipient address %q", addr))
		}
		recipients = append(recipients, addr)
	}
	if len(recipients) == 0 {
		return apperrors.NewValidationError("to", "at least one recipient is required")
	}

	subject = sanitizeHeader(subject)
	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + strings.Join(recipients, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if t.cfg.User != "" {
		auth = smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
	}
	addr := t.cfg.Host + ":" + t.cfg.Port

	row := &domain.OutboundEmail{
		TicketID: ticketID,
		To:       recipients,
		Subject:  subject,
		Body:     body,
		Status:   domain.OutboundStatusSent,
	}

	sendErr := t.send(addr, auth, from, recipients, []byte(msg.String()))
	if sendErr != nil {
		row.Status = domain.OutboundStatusFailed
		errMsg := sendErr.Error()
		row.ErrorMessage = &errMsg
		t.logger.Error("outbound email delivery failed",
			zap.Strings("to", recipients),
			zap.String("subject", subject),
			zap.Error(sendErr))
	}

	if t.outbound != nil {
		if err := t.outbound.Create(ctx, row); err != nil {
			t.logger.Error("could not record outbound email", zap.Error(err))
		}
	}

	if sendErr != nil {
		return apperrors.NewTransportError("could not send email", sendErr)
	}
	return nil
}
