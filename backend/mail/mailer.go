// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package mail sends the unlock and delivery notifications. Sends are
// best-effort from the scheduler's point of view: a failed mail is logged
// by the caller and never rolls back a state transition.
package mail

import (
	"context"
	"fmt"
	"html"

	gomail "github.com/wneessen/go-mail"
)

type Mailer interface {
	SendUnlockNotice(ctx context.Context, to, ownerName, capsuleTitle, capsuleID string) error
	SendDeliveryNotice(ctx context.Context, to, senderName, capsuleTitle, message, accessCode string) error
}

// NopMailer drops every message. Used when SMTP is not configured;
// notifications are best-effort so a silent mailer is a valid one.
type NopMailer struct{}

func (NopMailer) SendUnlockNotice(ctx context.Context, to, ownerName, capsuleTitle, capsuleID string) error {
	return nil
}

func (NopMailer) SendDeliveryNotice(ctx context.Context, to, senderName, capsuleTitle, message, accessCode string) error {
	return nil
}

type SMTPMailer struct {
	client  *gomail.Client
	from    string
	baseURL string
}

func NewSMTPMailer(host string, port int, username, password, from, baseURL string) (*SMTPMailer, error) {
	client, err := gomail.NewClient(host,
		gomail.WithPort(port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(username),
		gomail.WithPassword(password),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPMailer{client: client, from: from, baseURL: baseURL}, nil
}

func (m *SMTPMailer) SendUnlockNotice(ctx context.Context, to, ownerName, capsuleTitle, capsuleID string) error {
	body := fmt.Sprintf(`
		<h1>Your time capsule is unlocked!</h1>
		<p>Hello %s,</p>
		<p>Your time capsule "<strong>%s</strong>" is now unlocked.
		Revisit your memories from the past.</p>
		<p><a href="%s/capsule/%s">Open your capsule</a></p>`,
		html.EscapeString(ownerName), html.EscapeString(capsuleTitle),
		m.baseURL, capsuleID)

	return m.send(ctx, to, "Your Time Capsule is Unlocked!", body)
}

func (m *SMTPMailer) SendDeliveryNotice(ctx context.Context, to, senderName, capsuleTitle, message, accessCode string) error {
	extra := ""
	if message != "" {
		extra = fmt.Sprintf("<p><strong>Message:</strong> %s</p>", html.EscapeString(message))
	}
	body := fmt.Sprintf(`
		<h1>You received a time capsule!</h1>
		<p><strong>%s</strong> sent you a time capsule.</p>
		<p><strong>Title:</strong> %s</p>
		%s
		<p>Access code: <strong>%s</strong></p>
		<p><a href="%s/shared/%s">Open capsule</a></p>`,
		html.EscapeString(senderName), html.EscapeString(capsuleTitle),
		extra, accessCode, m.baseURL, accessCode)

	subject := fmt.Sprintf("%s sent you a Time Capsule!", senderName)
	return m.send(ctx, to, subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	return m.client.DialAndSendWithContext(ctx, msg)
}
