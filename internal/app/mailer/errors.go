package mailer

import "errors"

var (
	// ErrInvalidAddress indicates an address not shaped like local@domain.tld.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrMissingBody indicates neither a text nor an HTML body was set.
	ErrMissingBody = errors.New("must specify at least one body type (HTML or Text)")

	// ErrMissingRecipient indicates the To list is empty.
	ErrMissingRecipient = errors.New("must specify at least one recipient")

	// ErrMissingSender indicates no From address was set.
	ErrMissingSender = errors.New("must specify a sender address")

	// ErrAttachmentNotFound indicates an attachment path does not exist.
	ErrAttachmentNotFound = errors.New("attachment does not exist")

	// ErrAttachmentNotAFile indicates an attachment path is not a regular file.
	ErrAttachmentNotAFile = errors.New("attachment is not a file")

	// ErrAttachmentTooLarge indicates an attachment exceeds the configured limit.
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

	// ErrAllRecipientsRefused indicates the server accepted none of the recipients.
	ErrAllRecipientsRefused = errors.New("all recipients were refused")
)

// TransportError reports a failed step of the delivery session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
