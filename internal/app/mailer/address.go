package mailer

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// RecipientKind selects the recipient list an address is added to.
type RecipientKind int

const (
	To RecipientKind = iota
	CC
	BCC
)

func (k RecipientKind) String() string {
	switch k {
	case CC:
		return "CC"
	case BCC:
		return "BCC"
	default:
		return "TO"
	}
}

// addressPattern is intentionally loose: anything shaped like
// something@something.something passes. Full RFC 5322 validation
// would reject addresses the servers themselves accept.
var addressPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

const (
	addressDelimiters    = ",\n\r"
	attachmentDelimiters = "\n\r"
)

// ValidateAddress reports whether address has the loose local@domain.tld shape.
func ValidateAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// SplitAddressList splits a list of addresses separated by commas or line breaks.
// Segments are trimmed and empty segments dropped.
func SplitAddressList(list string) []string {
	return splitList(list, addressDelimiters)
}

// SplitAttachmentList splits a list of file paths separated by line breaks.
// Commas are kept, paths may contain them.
func SplitAttachmentList(list string) []string {
	return splitList(list, attachmentDelimiters)
}

func splitList(list, delimiters string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	})

	items := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			items = append(items, field)
		}
	}

	return items
}

// envelopeAddress returns the bare address used in MAIL FROM for a header
// value that may carry a display name ("Name <local@domain>").
func envelopeAddress(address string) string {
	if parsed, err := mail.ParseAddress(address); err == nil {
		return parsed.Address
	}
	return strings.TrimSpace(address)
}
