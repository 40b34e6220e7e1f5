package message

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
)

// LineEnding selects the line terminator used when flattening.
type LineEnding int

const (
	// LF is the native Unix convention.
	LF LineEnding = iota
	// CRLF is the canonical RFC 5322 convention.
	CRLF
)

func (le LineEnding) String() string {
	if le == CRLF {
		return "crlf"
	}
	return "lf"
}

// FlattenOptions controls how a message is serialized for an external program.
type FlattenOptions struct {
	// DeliveredTo prepends a Delivered-To field naming the recipient.
	DeliveredTo bool
	// Received prepends a Received trace field built from provenance.
	Received bool
	// IncludeFrom prepends an mbox "From " envelope line.
	IncludeFrom bool
	// LineEnding is applied to every line of the output.
	LineEnding LineEnding
	// Time stamps the envelope line and Received field; zero means now.
	Time time.Time
}

// Flatten serializes the message according to opts.
func (m *Message) Flatten(opts FlattenOptions) ([]byte, error) {
	now := opts.Time
	if now.IsZero() {
		now = time.Now()
	}

	hdr := m.Header.Copy()
	// Add prepends, so the last added field ends up on top.
	if opts.Received {
		hdr.Add("Received", m.receivedTrace(now))
	}
	if opts.DeliveredTo && m.Recipient != "" {
		hdr.Add("Delivered-To", m.Recipient)
	}

	var buf bytes.Buffer
	if opts.IncludeFrom {
		fmt.Fprintf(&buf, "From %s %s\n", envelopeSender(m.Sender), now.Format(time.ANSIC))
	}
	if err := textproto.WriteHeader(&buf, hdr); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	buf.Write(m.Body)

	return normalizeLineEndings(buf.Bytes(), opts.LineEnding), nil
}

func (m *Message) receivedTrace(now time.Time) string {
	var sb strings.Builder
	sb.WriteString("from ")
	sb.WriteString(orUnknown(m.ReceivedFrom))
	sb.WriteString(" by ")
	sb.WriteString(orUnknown(m.ReceivedBy))
	sb.WriteString(" with ")
	sb.WriteString(orUnknown(m.ReceivedWith))
	if m.Recipient != "" {
		sb.WriteString(" for <")
		sb.WriteString(m.Recipient)
		sb.WriteString(">")
	}
	sb.WriteString("; ")
	sb.WriteString(now.Format(time.RFC1123Z))
	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// envelopeSender renders the sender for an mbox envelope line, which cannot
// contain whitespace.
func envelopeSender(sender string) string {
	sender = strings.Trim(sender, "<>")
	if sender == "" {
		return "MAILER-DAEMON"
	}
	return strings.Join(strings.Fields(sender), "-")
}

func normalizeLineEndings(b []byte, le LineEnding) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	if le == CRLF {
		b = bytes.ReplaceAll(b, []byte("\n"), []byte("\r\n"))
	}
	return b
}
