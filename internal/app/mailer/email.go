package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Transport delivers a composed MIME document to the envelope recipients.
type Transport interface {
	Send(ctx context.Context, env Envelope, msg []byte) (Result, error)
}

// Envelope holds the SMTP-level sender and recipients, which differ from the
// headers: BCC recipients are only ever part of the envelope, and display
// names are stripped down to the bare address.
type Envelope struct {
	From       string
	Recipients []string
}

type attachmentRef struct {
	Path        string
	DisplayName string
}

// Email accumulates the fields of a single message and sends it.
// An Email is not safe for concurrent use.
type Email struct {
	transport Transport
	logger    *slog.Logger
	now       func() time.Time

	exposeBCCHeader   bool
	maxAttachmentSize int64

	subject  string
	from     string
	replyTo  string
	textBody string
	htmlBody string
	hasText  bool
	hasHTML  bool

	to          []string
	cc          []string
	bcc         []string
	attachments []attachmentRef
}

type Option func(*Email)

// WithTransport replaces the SMTP transport built from the connection parameters.
func WithTransport(transport Transport) Option {
	return func(e *Email) {
		e.transport = transport
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Email) {
		e.logger = logger
	}
}

// WithBCCHeader makes composed messages carry a Bcc header listing the blind
// recipients. Off by default: blind recipients are normally hidden from the
// other recipients.
func WithBCCHeader(expose bool) Option {
	return func(e *Email) {
		e.exposeBCCHeader = expose
	}
}

// WithMaxAttachmentSize limits the size of every attached file. Zero disables the check.
func WithMaxAttachmentSize(limit int64) Option {
	return func(e *Email) {
		e.maxAttachmentSize = limit
	}
}

// NewEmail creates an empty message that will be delivered over SMTP using cfg,
// unless another transport is given with WithTransport.
func NewEmail(cfg SMTPConfig, opts ...Option) *Email {
	e := &Email{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.transport == nil {
		e.transport = NewSMTPTransport(cfg, e.logger)
	}

	return e
}

func (e *Email) SetSubject(subject string) {
	e.subject = subject
}

func (e *Email) SetFrom(address string) error {
	if !ValidateAddress(address) {
		return fmt.Errorf("%w: FROM %q", ErrInvalidAddress, address)
	}
	e.from = address
	return nil
}

func (e *Email) SetReplyTo(address string) error {
	if !ValidateAddress(address) {
		return fmt.Errorf("%w: REPLY-TO %q", ErrInvalidAddress, address)
	}
	e.replyTo = address
	return nil
}

// SetTextBody sets the text/plain body. The content is used verbatim.
func (e *Email) SetTextBody(body string) {
	e.textBody = body
	e.hasText = true
}

// SetHTMLBody sets the text/html body. The content is used verbatim.
func (e *Email) SetHTMLBody(body string) {
	e.htmlBody = body
	e.hasHTML = true
}

func (e *Email) ClearRecipients() {
	e.to = nil
	e.cc = nil
	e.bcc = nil
}

// AddRecipient appends address to the list selected by kind. Duplicates are kept.
func (e *Email) AddRecipient(address string, kind RecipientKind) error {
	if !ValidateAddress(address) {
		return fmt.Errorf("%w: %s %q", ErrInvalidAddress, kind, address)
	}

	switch kind {
	case CC:
		e.cc = append(e.cc, address)
	case BCC:
		e.bcc = append(e.bcc, address)
	default:
		e.to = append(e.to, address)
	}

	return nil
}

// AddRecipients adds every address of a comma or line-break separated list.
// It stops at the first invalid address.
func (e *Email) AddRecipients(list string, kind RecipientKind) error {
	for _, address := range SplitAddressList(list) {
		if err := e.AddRecipient(address, kind); err != nil {
			return err
		}
	}
	return nil
}

func (e *Email) ClearAttachments() {
	e.attachments = nil
}

// AddAttachment queues the file at path. The file is only read when the
// message is composed. An empty displayName keeps the file's base name.
func (e *Email) AddAttachment(path, displayName string) {
	if path == "" {
		return
	}
	e.attachments = append(e.attachments, attachmentRef{Path: path, DisplayName: displayName})
}

// AddAttachments queues every path of a line-break separated list.
func (e *Email) AddAttachments(list string) {
	for _, path := range SplitAttachmentList(list) {
		e.AddAttachment(path, "")
	}
}

// Recipients returns To, CC and BCC addresses, in that order.
func (e *Email) Recipients() []string {
	all := make([]string, 0, len(e.to)+len(e.cc)+len(e.bcc))
	all = append(all, e.to...)
	all = append(all, e.cc...)
	all = append(all, e.bcc...)
	return all
}

// Send composes the message and hands it to the transport. Every validation
// and attachment error is reported before the transport is involved.
// Send is not idempotent: each call delivers the message again.
func (e *Email) Send(ctx context.Context) (Result, error) {
	msg, err := e.Compose()
	if err != nil {
		return Result{}, err
	}

	env := Envelope{From: envelopeAddress(e.from)}
	for _, rcpt := range e.Recipients() {
		env.Recipients = append(env.Recipients, envelopeAddress(rcpt))
	}

	e.logger.DebugContext(ctx, "sending message",
		slog.String("from", env.From),
		slog.Int("recipients", len(env.Recipients)),
		slog.Int("attachments", len(e.attachments)),
		slog.Int("size", len(msg)),
	)

	return e.transport.Send(ctx, env, msg)
}
