package preview

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hickar/mailsend/internal/app/mailer"
)

func TestRenderDefaultTemplate(t *testing.T) {
	msg := &Message{
		BodyParts: []BodySegment{
			{
				MIMEType: "text/plain",
				Body:     []byte("MUST NOT BE RENDERED"),
			},
			{
				MIMEType: "text/html",
				Body:     []byte("multiple<br/>line<br/>second part"),
			},
		},
		Attachments: []Attachment{
			{
				BodySegment: BodySegment{MIMEType: "application/pdf", Size: 1500},
				Filename:    "report.pdf",
			},
		},
		Subject: "Testing templates",
		From:    []Address{{Name: "Test Account", Address: "a@b.com"}},
		To:      []Address{{Address: "x@y.com"}, {Address: "z@y.com"}},
		CC:      []Address{{Address: "c@y.com"}},
		ReplyTo: []Address{{Address: "r@b.com"}},
		Date:    time.Date(1999, time.February, 25, 16, 16, 10, 0, time.Local),
	}

	want := `From: Test Account <a@b.com>
To: x@y.com, z@y.com
CC: c@y.com
Reply-To: r@b.com
Subject: Testing templates
Date: Feb 25 1999 16:16:10

multiple
line
second part

Attachments:
  - report.pdf (application/pdf, 1.5kB)`

	got, err := renderTemplate(msg)
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRenderWithoutBody(t *testing.T) {
	got, err := renderTemplate(&Message{
		To: []Address{{Address: "x@y.com"}},
		BodyParts: []BodySegment{
			{MIMEType: "image/png", Body: []byte{0x89}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "To: x@y.com\n\n"+noTextBody, got)
}

func TestParseMessage(t *testing.T) {
	raw := "From: Test Account <a@b.com>\r\n" +
		"To: x@y.com, z@y.com\r\n" +
		"Subject: Hi\r\n" +
		"Date: Thu, 25 Feb 1999 16:16:10 +0000\r\n" +
		"Message-Id: <abc@b.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello\r\n"

	msg, err := parseMessage([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []Address{{Name: "Test Account", Address: "a@b.com"}}, msg.From)
	assert.Equal(t, []Address{{Address: "x@y.com"}, {Address: "z@y.com"}}, msg.To)
	assert.Empty(t, msg.CC)
	assert.Equal(t, "Hi", msg.Subject)
	assert.Equal(t, "abc@b.com", msg.MessageID)
	assert.True(t, msg.Date.Equal(time.Date(1999, time.February, 25, 16, 16, 10, 0, time.UTC)))

	require.Len(t, msg.BodyParts, 1)
	assert.Equal(t, "text/plain", msg.BodyParts[0].MIMEType)
	assert.Equal(t, "hello\r\n", string(msg.BodyParts[0].Body))
}

func TestSendRendersComposedMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("1234"), 0o600))

	var out bytes.Buffer
	email := mailer.NewEmail(mailer.SMTPConfig{}, mailer.WithTransport(New(&out, nil)))

	require.NoError(t, email.SetFrom("a@b.com"))
	require.NoError(t, email.AddRecipients("x@y.com, z@y.com", mailer.To))
	require.NoError(t, email.AddRecipients("hidden@y.com", mailer.BCC))
	email.SetSubject("Hi")
	email.SetTextBody("hello")
	email.AddAttachment(path, "")

	res, err := email.Send(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"x@y.com", "z@y.com", "hidden@y.com"}, res.Accepted)
	assert.NotEmpty(t, res.MessageID)

	rendered := out.String()
	assert.Contains(t, rendered, "From: a@b.com\n")
	assert.Contains(t, rendered, "To: x@y.com, z@y.com\n")
	assert.Contains(t, rendered, "BCC: hidden@y.com\n")
	assert.Contains(t, rendered, "Subject: Hi\n")
	assert.Contains(t, rendered, "\n\nhello\n")
	assert.Contains(t, rendered, "  - data.bin (application/octet-stream, 4B)")
}

func TestBlindRecipients(t *testing.T) {
	msg := &Message{
		To: []Address{{Address: "x@y.com"}},
		CC: []Address{{Address: "c@y.com"}},
	}

	got := blindRecipients([]string{"x@y.com", "c@y.com", "x@y.com", "b@y.com"}, msg)
	assert.Equal(t, []Address{{Address: "x@y.com"}, {Address: "b@y.com"}}, got)
}

func TestParseMessageSegments(t *testing.T) {
	raw := "From: a@b.com\r\n" +
		"Cc: not an address\r\n" +
		"Content-Type: multipart/mixed; boundary=outer\r\n" +
		"\r\n" +
		"--outer\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--outer\r\n" +
		"Content-Type: text/csv\r\n" +
		"Content-Disposition: attachment; filename=\"rows.csv\"\r\n" +
		"\r\n" +
		"a,b\r\n" +
		"--outer--\r\n"

	msg, err := parseMessage([]byte(raw))
	require.NoError(t, err)

	assert.Nil(t, msg.CC)
	assert.Nil(t, msg.ReplyTo)

	require.Len(t, msg.BodyParts, 1)
	assert.Equal(t, "utf-8", msg.BodyParts[0].MIMETypeParams["charset"])
	assert.Equal(t, int64(len("hello")), msg.BodyParts[0].Size)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "rows.csv", att.Filename)
	assert.Equal(t, "text/csv", att.MIMEType)
	assert.Equal(t, "a,b", string(att.Body))
	assert.Equal(t, int64(3), att.Size)
}
