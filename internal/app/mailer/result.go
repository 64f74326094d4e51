package mailer

import (
	"fmt"
	"strings"
)

// Refusal is a recipient the server declined during RCPT TO.
type Refusal struct {
	Address string
	Code    int
	Message string
}

// Result describes a completed delivery. A message counts as sent when at
// least one recipient was accepted; the others are listed in Refused.
type Result struct {
	Accepted  []string
	Refused   []Refusal
	MessageID string
}

func (r Result) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "sent to %d recipient(s)", len(r.Accepted))
	if len(r.Accepted) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(r.Accepted, ", "))
	}
	if r.MessageID != "" {
		fmt.Fprintf(&b, " (id %s)", r.MessageID)
	}

	if len(r.Refused) > 0 {
		refused := make([]string, 0, len(r.Refused))
		for _, ref := range r.Refused {
			refused = append(refused, fmt.Sprintf("%s (%d %s)", ref.Address, ref.Code, ref.Message))
		}
		fmt.Fprintf(&b, "; refused: %s", strings.Join(refused, ", "))
	}

	return b.String()
}
