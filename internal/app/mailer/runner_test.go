package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/mailsend/internal/app/config"
)

func testConfig() config.Config {
	return config.Config{
		Fields: config.Fields{
			FromAddress: "a@b.com",
			ToAddress:   "x@y.com, z@y.com",
			Subject:     "Hi",
			BodyText:    "hello",
		},
	}
}

func TestRunnerSendsConfiguredFields(t *testing.T) {
	first := writeFile(t, "first.txt", "one")
	second := writeFile(t, "second.bin", "two")

	cfg := testConfig()
	cfg.Fields.CCAddress = "c@y.com"
	cfg.Fields.BCCAddress = "hidden@y.com"
	cfg.Fields.ReplyAddress = "reply@b.com"
	cfg.Fields.BodyHTML = "<b>hello</b>"
	cfg.Fields.AttachmentPath = first + "\n" + second

	transport := &recordingTransport{}
	runner := NewRunner(cfg, transport, nil)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, "a@b.com", transport.env.From)
	assert.Equal(t, []string{"x@y.com", "z@y.com", "c@y.com", "hidden@y.com"}, transport.env.Recipients)
	assert.Equal(t, transport.env.Recipients, res.Accepted)

	msg, mediaType, params := parseMessage(t, transport.msg)
	require.Equal(t, "multipart/mixed", mediaType)
	assert.Equal(t, "Hi", msg.Header.Get("Subject"))
	assert.Equal(t, "c@y.com", msg.Header.Get("Cc"))
	assert.Equal(t, "reply@b.com", msg.Header.Get("Reply-To"))
	assert.Empty(t, msg.Header.Get("Bcc"))

	parts := readParts(t, msg.Body, params["boundary"])
	require.Len(t, parts, 3)
	inner, _ := mediaTypeOf(t, parts[0].Header)
	assert.Equal(t, "multipart/alternative", inner)
}

func TestRunnerExposesBCCHeaderWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Fields.BCCAddress = "hidden@y.com"
	cfg.ExposeBCCHeader = true

	transport := &recordingTransport{}
	runner := NewRunner(cfg, transport, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	msg, _, _ := parseMessage(t, transport.msg)
	assert.Equal(t, "hidden@y.com", msg.Header.Get("Bcc"))
}

func TestRunnerErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *config.Config)
		wantErr error
		wantMsg string
	}{
		{
			name: "no body",
			modify: func(cfg *config.Config) {
				cfg.Fields.BodyText = ""
			},
			wantErr: ErrMissingBody,
			wantMsg: "bodyHTML or bodyText must be declared",
		},
		{
			name: "invalid sender",
			modify: func(cfg *config.Config) {
				cfg.Fields.FromAddress = "not an address"
			},
			wantErr: ErrInvalidAddress,
			wantMsg: "FROM",
		},
		{
			name: "invalid cc",
			modify: func(cfg *config.Config) {
				cfg.Fields.CCAddress = "c@y.com, broken"
			},
			wantErr: ErrInvalidAddress,
			wantMsg: "broken",
		},
		{
			name: "no recipients",
			modify: func(cfg *config.Config) {
				cfg.Fields.ToAddress = " , "
			},
			wantErr: ErrMissingRecipient,
		},
		{
			name: "attachment over limit",
			modify: func(cfg *config.Config) {
				cfg.MaxAttachmentSize = "2b"
				cfg.Fields.AttachmentPath = writeFile(t, "big.txt", "more than two bytes")
			},
			wantErr: ErrAttachmentTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			transport := &recordingTransport{}
			runner := NewRunner(cfg, transport, nil)

			_, err := runner.Run(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Zero(t, transport.calls)
		})
	}
}

func TestRunnerRejectsBadSizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttachmentSize = "lots"

	runner := NewRunner(cfg, &recordingTransport{}, nil)
	_, err := runner.Run(context.Background())

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse max_attachment_size"))
}

func TestSMTPConfigFrom(t *testing.T) {
	cfg := config.Config{
		ConnectTimeout:     3 * time.Second,
		InsecureSkipVerify: true,
		Fields: config.Fields{
			EmailServer: "smtp.example.com",
			SMTPPort:    587,
			Hostname:    "client.example.com",
			Username:    "user",
			Password:    "pass",
			DebugLevel:  1,
		},
	}

	smtpCfg := SMTPConfigFrom(cfg)
	assert.Equal(t, "smtp.example.com", smtpCfg.Host)
	assert.Equal(t, 587, smtpCfg.Port)
	assert.Equal(t, "client.example.com", smtpCfg.LocalName)
	assert.Equal(t, "user", smtpCfg.Username)
	assert.Equal(t, "pass", smtpCfg.Password)
	assert.Equal(t, 1, smtpCfg.DebugLevel)
	assert.Equal(t, 3*time.Second, smtpCfg.ConnectTimeout)
	require.NotNil(t, smtpCfg.TLSConfig)
	assert.True(t, smtpCfg.TLSConfig.InsecureSkipVerify)

	cfg.InsecureSkipVerify = false
	cfg.Fields.SMTPPort = 0
	smtpCfg = SMTPConfigFrom(cfg)
	assert.Nil(t, smtpCfg.TLSConfig)
	assert.Equal(t, DefaultSMTPPort, smtpCfg.Port)
}

func TestRunnerAttachmentLimitUsesDecimalUnits(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"at limit", 1000, false},
		{"one byte over", 1001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxAttachmentSize = "1kB"
			cfg.Fields.AttachmentPath = writeFile(t, "blob.bin", strings.Repeat("x", tt.size))

			transport := &recordingTransport{}
			runner := NewRunner(cfg, transport, nil)

			_, err := runner.Run(context.Background())
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAttachmentTooLarge)
				assert.Zero(t, transport.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, transport.calls)
		})
	}
}
