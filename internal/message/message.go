// Package message holds the mail message model that filters consume and
// produce: an RFC 5322 header plus raw body, together with the envelope and
// retrieval metadata that travel with it through a filter chain.
package message

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/emersion/go-message/textproto"
)

// Message is a mail message with its envelope and retrieval metadata.
type Message struct {
	// Sender is the envelope return path. An empty Sender with HasSender
	// set is the null return path of a bounce.
	Sender string

	// HasSender is set when the envelope carried a return path at all.
	HasSender bool

	// Recipient is the envelope recipient. Empty means absent; only
	// multidrop retrieval supplies it.
	Recipient string

	// Provenance stamped onto the message before filtering.
	ReceivedFrom string
	ReceivedWith string
	ReceivedBy   string

	// Flags carries retrieval flags (e.g. IMAP \Seen) alongside the message.
	Flags []string

	Header textproto.Header
	Body   []byte
}

// Provenance describes where and how a message was retrieved.
type Provenance struct {
	ReceivedFrom string
	ReceivedWith string
	ReceivedBy   string
}

// New returns an empty message with the given envelope. The sender is
// always present, so "" is the null return path.
func New(sender, recipient string) *Message {
	return &Message{Sender: sender, HasSender: true, Recipient: recipient}
}

// SetSender records the envelope return path; "" is the null path.
func (m *Message) SetSender(sender string) {
	m.Sender = sender
	m.HasSender = true
}

// Parse reads a complete message from r. A leading mbox "From " envelope
// line is skipped. Empty input yields an empty message. Header parsing is
// lenient: the first line that is neither a field nor a continuation ends
// the header and starts the body, so output without any header fields
// becomes a message with an empty header.
func Parse(r io.Reader) (*Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	if bytes.HasPrefix(data, []byte("From ")) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}

	msg := &Message{}
	if len(data) == 0 {
		return msg, nil
	}

	hdrEnd, bodyStart := splitHeader(data)
	if hdrEnd > 0 {
		raw := make([]byte, 0, hdrEnd+4)
		raw = append(raw, data[:hdrEnd]...)
		if raw[len(raw)-1] != '\n' {
			raw = append(raw, '\r', '\n')
		}
		raw = append(raw, '\r', '\n')
		hdr, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		msg.Header = hdr
	}
	msg.Body = data[bodyStart:]
	return msg, nil
}

// splitHeader returns where the header fields of data end and where the
// body starts. The blank separator line lies between the two; when the
// header is ended by a non-field line instead, both offsets are equal.
func splitHeader(data []byte) (hdrEnd, bodyStart int) {
	off := 0
	for off < len(data) {
		line := data[off:]
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i+1]
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		switch {
		case len(trimmed) == 0:
			return off, off + len(line)
		case trimmed[0] == ' ' || trimmed[0] == '\t':
			if off == 0 {
				return 0, 0
			}
		case !isField(trimmed):
			return off, off
		}
		off += len(line)
	}
	return off, off
}

// isField reports whether line starts with a field name and a colon.
func isField(line []byte) bool {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return false
	}
	for _, c := range line[:i] {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

// ParseBytes is a convenience wrapper around Parse.
func ParseBytes(b []byte) (*Message, error) {
	return Parse(bytes.NewReader(b))
}

// SetProvenance stamps retrieval provenance onto the message.
func (m *Message) SetProvenance(p Provenance) {
	m.ReceivedFrom = p.ReceivedFrom
	m.ReceivedWith = p.ReceivedWith
	m.ReceivedBy = p.ReceivedBy
}

// Provenance returns the provenance currently stamped on the message.
func (m *Message) Provenance() Provenance {
	return Provenance{
		ReceivedFrom: m.ReceivedFrom,
		ReceivedWith: m.ReceivedWith,
		ReceivedBy:   m.ReceivedBy,
	}
}

// HeaderCount returns the raw number of header fields. Folded fields count
// once and repeated names count once per occurrence.
func (m *Message) HeaderCount() int {
	return m.Header.Len()
}

// AddHeader appends a header field after the existing ones.
func (m *Message) AddHeader(name, value string) {
	var raws [][]byte
	fields := m.Header.Fields()
	for fields.Next() {
		raw, err := fields.Raw()
		if err != nil {
			// Field cannot be re-serialized verbatim; fall back to a top
			// insertion rather than losing it.
			m.Header.Add(name, value)
			return
		}
		raws = append(raws, raw)
	}

	var f textproto.Header
	f.Add(name, value)
	added := f.Fields()
	added.Next()
	raw, err := added.Raw()
	if err != nil {
		m.Header.Add(name, value)
		return
	}
	raws = append(raws, raw)

	// AddRaw prepends, so rebuild back to front.
	var h textproto.Header
	for i := len(raws) - 1; i >= 0; i-- {
		h.AddRaw(raws[i])
	}
	m.Header = h
}

// CopyAttrs copies the envelope, provenance and flags of other onto m.
func (m *Message) CopyAttrs(other *Message) {
	m.Sender = other.Sender
	m.HasSender = other.HasSender
	m.Recipient = other.Recipient
	m.ReceivedFrom = other.ReceivedFrom
	m.ReceivedWith = other.ReceivedWith
	m.ReceivedBy = other.ReceivedBy
	m.Flags = append([]string(nil), other.Flags...)
}
