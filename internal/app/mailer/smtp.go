package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

const (
	DefaultSMTPPort       = 25
	defaultConnectTimeout = 5 * time.Second
)

// SMTPConfig holds the connection parameters of an SMTP relay.
type SMTPConfig struct {
	Host string
	Port int

	// LocalName is announced in EHLO. Defaults to the machine host name.
	LocalName string

	// Username and Password enable encryption and SMTP AUTH when Username is set.
	Username string
	Password string

	// DebugLevel above zero writes the protocol trace to DebugWriter.
	DebugLevel  int
	DebugWriter io.Writer

	// ConnectTimeout bounds the TCP (and TLS) connect. Defaults to 5 seconds.
	ConnectTimeout time.Duration

	// TLSConfig overrides the client TLS settings used for STARTTLS and implicit TLS.
	TLSConfig *tls.Config
}

// SMTPTransport delivers messages in a single SMTP session per Send.
type SMTPTransport struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if cfg.Port <= 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.DebugWriter == nil {
		cfg.DebugWriter = os.Stderr
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SMTPTransport{
		cfg:    cfg,
		logger: logger,
	}
}

// Send performs one SMTP transaction.
//
// Execution flow:
//  1. Connect over plain TCP and greet the server.
//  2. If credentials are configured and STARTTLS is advertised, reconnect and
//     upgrade before greeting again; without STARTTLS reconnect with implicit
//     TLS on the same address. Then authenticate.
//  3. MAIL FROM, RCPT TO for every recipient, DATA.
//  4. QUIT, whatever the outcome. Errors from closing are ignored.
//
// Recipients refused during RCPT TO are reported in Result; the send only fails
// when every recipient was refused.
func (t *SMTPTransport) Send(ctx context.Context, env Envelope, msg []byte) (Result, error) {
	var res Result

	client, err := t.connect(ctx)
	if err != nil {
		return res, err
	}
	defer closeQuietly(client)

	if err = client.Mail(env.From, nil); err != nil {
		return res, &TransportError{Op: "mail from", Err: err}
	}

	for _, rcpt := range env.Recipients {
		err = client.Rcpt(rcpt, nil)
		if err == nil {
			res.Accepted = append(res.Accepted, rcpt)
			continue
		}

		var smtpErr *smtp.SMTPError
		if !errors.As(err, &smtpErr) {
			return res, &TransportError{Op: "rcpt to", Err: err}
		}

		t.logger.DebugContext(ctx, "recipient refused",
			slog.String("recipient", rcpt),
			slog.Int("code", smtpErr.Code),
		)
		res.Refused = append(res.Refused, Refusal{
			Address: rcpt,
			Code:    smtpErr.Code,
			Message: smtpErr.Message,
		})
	}

	if len(res.Accepted) == 0 {
		return res, &TransportError{Op: "rcpt to", Err: ErrAllRecipientsRefused}
	}

	w, err := client.Data()
	if err != nil {
		return res, &TransportError{Op: "data", Err: err}
	}
	if _, err = io.Copy(w, bytes.NewReader(msg)); err != nil {
		_ = w.Close()
		return res, &TransportError{Op: "data", Err: err}
	}
	if err = w.Close(); err != nil {
		return res, &TransportError{Op: "data", Err: err}
	}

	return res, nil
}

func (t *SMTPTransport) address() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// connect returns a greeted, and when credentials are set, encrypted and
// authenticated client.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	addr := t.address()
	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	client := t.newClient(conn)
	if err = client.Hello(t.localName()); err != nil {
		_ = client.Close()
		return nil, &TransportError{Op: "ehlo", Err: err}
	}
	t.logger.DebugContext(ctx, "connected", slog.String("addr", addr))

	if t.cfg.Username == "" {
		return client, nil
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		closeQuietly(client)

		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &TransportError{Op: "dial", Err: err}
		}

		client, err = smtp.NewClientStartTLS(conn, t.tlsConfig())
		if err != nil {
			_ = conn.Close()
			return nil, &TransportError{Op: "starttls", Err: err}
		}
		t.trace(client)

		if err = client.Hello(t.localName()); err != nil {
			closeQuietly(client)
			return nil, &TransportError{Op: "ehlo", Err: err}
		}
		t.logger.DebugContext(ctx, "session upgraded with STARTTLS")
	} else {
		closeQuietly(client)

		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &TransportError{Op: "dial tls", Err: err}
		}

		client = t.newClient(conn)
		if err = client.Hello(t.localName()); err != nil {
			_ = client.Close()
			return nil, &TransportError{Op: "ehlo", Err: err}
		}
		t.logger.DebugContext(ctx, "STARTTLS not offered, reconnected with implicit TLS")
	}

	// AUTH is read from the capabilities of the encrypted session.
	_, mechanisms := client.Extension("AUTH")
	if err = client.Auth(t.saslClient(mechanisms)); err != nil {
		closeQuietly(client)
		return nil, &TransportError{Op: "auth", Err: err}
	}

	return client, nil
}

func (t *SMTPTransport) newClient(conn net.Conn) *smtp.Client {
	client := smtp.NewClient(conn)
	t.trace(client)
	return client
}

func (t *SMTPTransport) trace(client *smtp.Client) {
	if t.cfg.DebugLevel > 0 {
		client.DebugWriter = t.cfg.DebugWriter
	}
}

func (t *SMTPTransport) localName() string {
	if t.cfg.LocalName != "" {
		return t.cfg.LocalName
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "localhost"
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig == nil {
		return &tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	cfg := t.cfg.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = t.cfg.Host
	}
	return cfg
}

// saslClient picks PLAIN unless the server only offers LOGIN.
func (t *SMTPTransport) saslClient(mechanisms string) sasl.Client {
	offered := strings.Fields(strings.ToUpper(mechanisms))
	hasPlain, hasLogin := false, false
	for _, mech := range offered {
		switch mech {
		case sasl.Plain:
			hasPlain = true
		case sasl.Login:
			hasLogin = true
		}
	}

	if hasLogin && !hasPlain {
		return sasl.NewLoginClient(t.cfg.Username, t.cfg.Password)
	}
	return sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
}

// closeQuietly ends the session politely and falls back to dropping the connection.
func closeQuietly(client *smtp.Client) {
	if err := client.Quit(); err != nil {
		_ = client.Close()
	}
}
