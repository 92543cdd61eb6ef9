// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail delivers transactional email (verification links, password resets).

Architecture:

  - Mailer: The contract consumed by domain services. It returns a provider
    message id on success so deliveries can be correlated in logs.
  - SMTPMailer: Production implementation backed by gomail.
  - LogMailer: Development fallback that only logs the message.
*/
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/taibuivan/bazaar/pkg/uuid"
)

// ErrEmptyRecipient is returned when a message has no destination address.
var ErrEmptyRecipient = errors.New("mail: empty recipient")

// Message is a single outbound HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a message and returns the provider-assigned id.
type Mailer interface {
	Send(ctx context.Context, message Message) (string, error)
}

// # SMTP Delivery

// SMTPConfig holds the dialer settings for [SMTPMailer].
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	domain string
	logger *slog.Logger
}

// NewSMTPMailer creates an [SMTPMailer]. No connection is opened until the first send.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		domain: cfg.Host,
		logger: logger,
	}
}

// Send dials the relay and delivers message. The returned id is the Message-ID header.
func (mailer *SMTPMailer) Send(ctx context.Context, message Message) (string, error) {
	if strings.TrimSpace(message.To) == "" {
		return "", ErrEmptyRecipient
	}

	// gomail has no context support; at least do not start a send for a dead request.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("mail: send aborted: %w", err)
	}

	id := fmt.Sprintf("<%s@%s>", uuid.New(), mailer.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", mailer.from)
	m.SetHeader("To", message.To)
	m.SetHeader("Subject", message.Subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/html", message.HTML)

	if err := mailer.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("mail: smtp send failed: %w", err)
	}

	mailer.logger.InfoContext(ctx, "mail_sent",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("message_id", id),
	)

	return id, nil
}

// # Development Delivery

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a [LogMailer].
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the recipient and subject at info level and returns a synthetic id.
// The body is never logged; it carries redeemable codes.
func (mailer *LogMailer) Send(ctx context.Context, message Message) (string, error) {
	if strings.TrimSpace(message.To) == "" {
		return "", ErrEmptyRecipient
	}

	id := "log-" + uuid.New()
	mailer.logger.InfoContext(ctx, "mail_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("message_id", id),
	)
	return id, nil
}
