package preview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is the parsed form of a composed document.
type Message struct {
	MessageID   string
	From        []Address
	To          []Address
	CC          []Address
	BCC         []Address
	ReplyTo     []Address
	Subject     string
	Date        time.Time
	BodyParts   []BodySegment
	Attachments []Attachment
}

type Address struct {
	Name    string
	Address string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

type BodySegment struct {
	MIMEType       string
	MIMETypeParams map[string]string
	Body           []byte
	Size           int64
}

type Attachment struct {
	BodySegment
	Filename string
}

// parseMessage reads a composed document back into its headers, inline body
// parts and attachments. Nested multiparts are flattened.
func parseMessage(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("create reader: %w", err)
	}
	defer func() {
		_ = mr.Close()
	}()

	msg := &Message{
		From:    addressesOf(mr.Header, "From"),
		To:      addressesOf(mr.Header, "To"),
		CC:      addressesOf(mr.Header, "Cc"),
		BCC:     addressesOf(mr.Header, "Bcc"),
		ReplyTo: addressesOf(mr.Header, "Reply-To"),
	}
	msg.Date, _ = mr.Header.Date()
	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("next part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			seg, err := readSegment(part.Body, h.Header)
			if err != nil {
				return nil, fmt.Errorf("inline part: %w", err)
			}
			msg.BodyParts = append(msg.BodyParts, seg)
		case *mail.AttachmentHeader:
			seg, err := readSegment(part.Body, h.Header)
			if err != nil {
				return nil, fmt.Errorf("attachment: %w", err)
			}
			// A missing or undecodable name still lists the attachment.
			name, _ := h.Filename()
			msg.Attachments = append(msg.Attachments, Attachment{BodySegment: seg, Filename: name})
		}
	}

	return msg, nil
}

// readSegment drains body. The part's media type is kept with its
// parameters so the charset stays visible in the preview.
func readSegment(body io.Reader, h message.Header) (BodySegment, error) {
	mediaType, params, err := h.ContentType()
	if err != nil {
		return BodySegment{}, fmt.Errorf("content type: %w", err)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return BodySegment{}, fmt.Errorf("read body: %w", err)
	}

	return BodySegment{
		MIMEType:       mediaType,
		MIMETypeParams: params,
		Body:           data,
		Size:           int64(len(data)),
	}, nil
}

// addressesOf yields nil for an absent or malformed field.
func addressesOf(h mail.Header, field string) []Address {
	list, err := h.AddressList(field)
	if err != nil || len(list) == 0 {
		return nil
	}

	out := make([]Address, len(list))
	for i, a := range list {
		out[i] = Address{Name: a.Name, Address: a.Address}
	}
	return out
}
