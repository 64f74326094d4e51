// Package archive keeps a copy of every sent message in an IMAP mailbox.
package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/hickar/mailsend/internal/app/config"
	"github.com/hickar/mailsend/internal/app/mailer"
)

type ImapDialer interface {
	DialTLS(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error)
}

type ImapDialerFunc func(context.Context, string, *imapclient.Options) (*imapclient.Client, error)

func (f ImapDialerFunc) DialTLS(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error) {
	return f(ctx, address, options)
}

// NewTLSDialer connects with implicit TLS, giving up after timeout or when
// ctx is done, whichever comes first.
func NewTLSDialer(timeout time.Duration, insecureSkipVerify bool) ImapDialerFunc {
	return func(ctx context.Context, address string, options *imapclient.Options) (*imapclient.Client, error) {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}

		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: timeout},
			Config: &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
				//nolint:gosec
				InsecureSkipVerify: insecureSkipVerify,
			},
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}

		return imapclient.New(conn, options), nil
	}
}

// Transport wraps another transport and appends the delivered document to
// the sent mailbox.
type Transport struct {
	next     mailer.Transport
	dialer   ImapDialer
	address  string
	login    string
	password string
	mailbox  string
	now      func() time.Time
	logger   *slog.Logger
}

// Wrap returns next unchanged when the sent copy is disabled. The IMAP login
// and password default to the SMTP credentials of cfg.Fields.
func Wrap(next mailer.Transport, cfg config.Config, dialer ImapDialer, logger *slog.Logger) mailer.Transport {
	if !cfg.SentCopy.Enabled {
		return next
	}
	if dialer == nil {
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = config.DefaultConnectTimeout
		}
		dialer = NewTLSDialer(timeout, cfg.InsecureSkipVerify)
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		next:     next,
		dialer:   dialer,
		address:  cfg.SentCopy.Address,
		login:    cfg.SentCopy.Login,
		password: cfg.SentCopy.Password,
		mailbox:  cfg.SentCopy.Mailbox,
		now:      time.Now,
		logger:   logger,
	}
	if t.login == "" {
		t.login = cfg.Fields.Username
	}
	if t.password == "" {
		t.password = cfg.Fields.Password
	}
	if t.mailbox == "" {
		t.mailbox = config.DefaultSentMailbox
	}

	return t
}

// Send delivers through the wrapped transport first. The copy is only made
// for delivered messages, and a failed copy never fails the send.
func (t *Transport) Send(ctx context.Context, env mailer.Envelope, msg []byte) (mailer.Result, error) {
	res, err := t.next.Send(ctx, env, msg)
	if err != nil {
		return res, err
	}

	if err = t.store(ctx, msg); err != nil {
		t.logger.WarnContext(ctx, "unable to store sent copy",
			slog.String("mailbox", t.mailbox),
			slog.Any("error", err),
		)
		return res, nil
	}

	t.logger.DebugContext(ctx, "sent copy stored", slog.String("mailbox", t.mailbox))
	return res, nil
}

// store appends msg to the mailbox, flagged as seen.
//
// Execution flow:
//  1. Connect to the IMAP server using TLS.
//  2. Authenticate with the configured credentials.
//  3. APPEND the document with the \Seen flag and the current time.
//  4. Log out, closing the connection on every path.
//
// Cancelling ctx closes the connection, which aborts a pending command.
func (t *Transport) store(ctx context.Context, msg []byte) error {
	client, err := t.dialer.DialTLS(ctx, t.address, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})
	if err != nil {
		return fmt.Errorf("dial TLS: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer func() {
		stop()
		_ = client.Close()
	}()

	if err = client.Login(t.login, t.password).Wait(); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cmd := client.Append(t.mailbox, int64(len(msg)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  t.now(),
	})
	if _, err = io.Copy(cmd, bytes.NewReader(msg)); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append: %w", err)
	}
	if err = cmd.Close(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if _, err = cmd.Wait(); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	if err = client.Logout().Wait(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}
