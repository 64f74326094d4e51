package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/docker/go-units"

	"github.com/hickar/mailsend/internal/app/config"
	"github.com/hickar/mailsend/internal/pkg/logger"
)

// TaskRunner turns the field set handed over by the calling application into
// a single sent message.
type TaskRunner struct {
	cfg       config.Config
	transport Transport
	logger    *slog.Logger
}

// NewRunner creates a runner. A nil transport delivers over SMTP using the
// server fields of cfg.
func NewRunner(cfg config.Config, transport Transport, logger *slog.Logger) TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}

	return TaskRunner{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
	}
}

// SMTPConfigFrom maps the connection fields of cfg onto SMTPConfig.
func SMTPConfigFrom(cfg config.Config) SMTPConfig {
	smtpCfg := SMTPConfig{
		Host:           cfg.Fields.EmailServer,
		Port:           cfg.Fields.Port(),
		LocalName:      cfg.Fields.Hostname,
		Username:       cfg.Fields.Username,
		Password:       cfg.Fields.Password,
		DebugLevel:     cfg.Fields.DebugLevel,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if cfg.InsecureSkipVerify {
		//nolint:gosec
		smtpCfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return smtpCfg
}

// Run builds the message from the configured fields and sends it.
//
// Unset fields count as empty. The only hard requirements checked here are a
// body (text or HTML) and, through the message itself, a valid sender and at
// least one To recipient. The text body is set before the HTML body: with
// both present the HTML alternative comes last and is preferred by readers.
func (r *TaskRunner) Run(ctx context.Context) (Result, error) {
	fields := r.cfg.Fields
	ctx = logger.WithAttrs(ctx, slog.String("from", fields.FromAddress))

	if fields.BodyText == "" && fields.BodyHTML == "" {
		return Result{}, fmt.Errorf("bodyHTML or bodyText must be declared for message body: %w", ErrMissingBody)
	}

	email, err := r.newEmail()
	if err != nil {
		return Result{}, err
	}

	if err = email.SetFrom(fields.FromAddress); err != nil {
		return Result{}, err
	}
	if err = email.AddRecipients(fields.ToAddress, To); err != nil {
		return Result{}, err
	}
	if fields.CCAddress != "" {
		if err = email.AddRecipients(fields.CCAddress, CC); err != nil {
			return Result{}, err
		}
	}
	if fields.BCCAddress != "" {
		if err = email.AddRecipients(fields.BCCAddress, BCC); err != nil {
			return Result{}, err
		}
	}
	if fields.ReplyAddress != "" {
		if err = email.SetReplyTo(fields.ReplyAddress); err != nil {
			return Result{}, err
		}
	}

	email.SetSubject(fields.Subject)
	if fields.BodyText != "" {
		email.SetTextBody(fields.BodyText)
	}
	if fields.BodyHTML != "" {
		email.SetHTMLBody(fields.BodyHTML)
	}
	if fields.AttachmentPath != "" {
		email.AddAttachments(fields.AttachmentPath)
	}

	res, err := email.Send(ctx)
	if err != nil {
		r.logger.DebugContext(ctx, "message was not sent", slog.Any("error", err))
		return res, err
	}

	r.logger.InfoContext(ctx, fmt.Sprintf("message sent to %d recipient(s)", len(res.Accepted)),
		slog.Int("refused", len(res.Refused)),
	)

	return res, nil
}

func (r *TaskRunner) newEmail() (*Email, error) {
	opts := []Option{
		WithLogger(r.logger),
		WithBCCHeader(r.cfg.ExposeBCCHeader),
	}

	if r.cfg.MaxAttachmentSize != "" {
		limit, err := units.FromHumanSize(r.cfg.MaxAttachmentSize)
		if err != nil {
			return nil, fmt.Errorf("parse max_attachment_size: %w", err)
		}
		opts = append(opts, WithMaxAttachmentSize(limit))
	}

	if r.transport != nil {
		opts = append(opts, WithTransport(r.transport))
	}

	return NewEmail(SMTPConfigFrom(r.cfg), opts...), nil
}
