// Package preview implements a dry-run transport that prints composed
// messages instead of delivering them.
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hickar/mailsend/internal/app/mailer"
)

type Transport struct {
	writer io.Writer
	logger *slog.Logger
}

// New creates a Transport writing to w, or to os.Stdout when w is nil.
func New(w io.Writer, logger *slog.Logger) *Transport {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		writer: w,
		logger: logger,
	}
}

// Send renders msg in a human-readable form. Every envelope recipient is
// reported as accepted.
func (t *Transport) Send(ctx context.Context, env mailer.Envelope, msg []byte) (mailer.Result, error) {
	var res mailer.Result

	message, err := parseMessage(msg)
	if err != nil {
		return res, &mailer.TransportError{Op: "preview", Err: err}
	}

	// Blind recipients never reach the headers unless exposed, show them anyway.
	if len(message.BCC) == 0 {
		message.BCC = blindRecipients(env.Recipients, message)
	}

	text, err := renderTemplate(message)
	if err != nil {
		return res, &mailer.TransportError{Op: "preview", Err: err}
	}

	if _, err = fmt.Fprintln(t.writer, text); err != nil {
		return res, &mailer.TransportError{Op: "preview", Err: err}
	}

	t.logger.DebugContext(ctx, "message rendered instead of sent",
		slog.Int("parts", len(message.BodyParts)),
		slog.Int("attachments", len(message.Attachments)),
	)

	res.Accepted = append(res.Accepted, env.Recipients...)
	res.MessageID = message.MessageID

	return res, nil
}

// blindRecipients returns the envelope recipients that are in none of the
// To and CC headers.
func blindRecipients(recipients []string, message *Message) []Address {
	visible := make(map[string]int, len(message.To)+len(message.CC))
	for _, addr := range message.To {
		visible[addr.Address]++
	}
	for _, addr := range message.CC {
		visible[addr.Address]++
	}

	var blind []Address
	for _, rcpt := range recipients {
		if visible[rcpt] > 0 {
			visible[rcpt]--
			continue
		}
		blind = append(blind, Address{Address: rcpt})
	}

	return blind
}
