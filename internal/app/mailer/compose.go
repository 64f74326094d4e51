package mailer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

var utf8Params = map[string]string{"charset": "utf-8"}

// Compose validates the message and renders it as a MIME document.
//
// Layout:
//   - one body, no attachments: a single text/plain or text/html entity;
//   - both bodies: multipart/alternative, plain text first so that mail
//     readers prefer the HTML part;
//   - attachments: multipart/mixed holding the body entity followed by one
//     part per file.
//
// Attachment files are read here, so a bad path fails before any delivery.
func (e *Email) Compose() ([]byte, error) {
	if !e.hasText && !e.hasHTML {
		return nil, ErrMissingBody
	}
	if len(e.to) == 0 {
		return nil, ErrMissingRecipient
	}
	if e.from == "" {
		return nil, ErrMissingSender
	}

	parts := make([]attachmentPart, 0, len(e.attachments))
	for _, ref := range e.attachments {
		part, err := loadAttachment(ref, e.maxAttachmentSize)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	header, err := e.header()
	if err != nil {
		return nil, fmt.Errorf("build header: %w", err)
	}

	var buf bytes.Buffer
	if len(parts) == 0 {
		err = e.writeBody(&buf, header)
	} else {
		err = e.writeMixed(&buf, header, parts)
	}
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	return buf.Bytes(), nil
}

func (e *Email) header() (mail.Header, error) {
	var h mail.Header

	h.SetDate(e.now())
	h.SetSubject(e.subject)
	h.Set("From", e.from)
	h.Set("To", strings.Join(e.to, ", "))
	if len(e.cc) > 0 {
		h.Set("Cc", strings.Join(e.cc, ", "))
	}
	if e.exposeBCCHeader && len(e.bcc) > 0 {
		h.Set("Bcc", strings.Join(e.bcc, ", "))
	}
	if e.replyTo != "" {
		h.Set("Reply-To", e.replyTo)
	}
	h.Set("MIME-Version", "1.0")

	if err := h.GenerateMessageID(); err != nil {
		return h, fmt.Errorf("generate message id: %w", err)
	}

	return h, nil
}

// writeBody writes a message without attachments.
func (e *Email) writeBody(w io.Writer, h mail.Header) error {
	if e.hasText && e.hasHTML {
		iw, err := mail.CreateInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("create alternative writer: %w", err)
		}
		if err = e.writeAlternatives(iw); err != nil {
			return err
		}
		return iw.Close()
	}

	mediaType, body := e.singleBody()
	h.SetContentType(mediaType, utf8Params)

	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("create body writer: %w", err)
	}
	if _, err = io.WriteString(bw, body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return bw.Close()
}

// writeMixed writes the body followed by the attachments in a multipart/mixed container.
func (e *Email) writeMixed(w io.Writer, h mail.Header, parts []attachmentPart) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("create mixed writer: %w", err)
	}

	if e.hasText && e.hasHTML {
		iw, err := mw.CreateInline()
		if err != nil {
			return fmt.Errorf("create alternative part: %w", err)
		}
		if err = e.writeAlternatives(iw); err != nil {
			return err
		}
		if err = iw.Close(); err != nil {
			return err
		}
	} else {
		mediaType, body := e.singleBody()

		var ih mail.InlineHeader
		ih.SetContentType(mediaType, utf8Params)

		bw, err := mw.CreateSingleInline(ih)
		if err != nil {
			return fmt.Errorf("create body part: %w", err)
		}
		if _, err = io.WriteString(bw, body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		if err = bw.Close(); err != nil {
			return err
		}
	}

	for _, part := range parts {
		if err = writeAttachment(mw, part); err != nil {
			return fmt.Errorf("attach %q: %w", part.Filename, err)
		}
	}

	return mw.Close()
}

func (e *Email) writeAlternatives(iw *mail.InlineWriter) error {
	alternatives := []struct {
		mediaType string
		body      string
	}{
		{mimeTextPlain, e.textBody},
		{mimeTextHTML, e.htmlBody},
	}

	for _, alt := range alternatives {
		var ih mail.InlineHeader
		ih.SetContentType(alt.mediaType, utf8Params)

		pw, err := iw.CreatePart(ih)
		if err != nil {
			return fmt.Errorf("create %s part: %w", alt.mediaType, err)
		}
		if _, err = io.WriteString(pw, alt.body); err != nil {
			return fmt.Errorf("write %s part: %w", alt.mediaType, err)
		}
		if err = pw.Close(); err != nil {
			return err
		}
	}

	return nil
}

func (e *Email) singleBody() (string, string) {
	if e.hasHTML {
		return mimeTextHTML, e.htmlBody
	}
	return mimeTextPlain, e.textBody
}

func writeAttachment(mw *mail.Writer, part attachmentPart) error {
	var ah mail.AttachmentHeader
	ah.SetContentType(part.MediaType, part.MediaParams)
	ah.Set("Content-Transfer-Encoding", part.TransferEncode)
	ah.SetFilename(part.Filename)

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return err
	}
	if _, err = aw.Write(part.Content); err != nil {
		return err
	}
	return aw.Close()
}
