package message

import (
	"strings"
	"testing"
	"time"
)

const testMessage = "Subject: hello\nFrom: Alice <alice@example.com>\nTo: bob@example.org\n\nbody line 1\nbody line 2\n"

func TestParse(t *testing.T) {
	msg, err := ParseBytes([]byte(testMessage))
	if err != nil {
		t.Fatal(err)
	}
	if n := msg.HeaderCount(); n != 3 {
		t.Errorf("expected 3 header fields, got %d", n)
	}
	if got := msg.Header.Get("Subject"); got != "hello" {
		t.Errorf("expected subject hello, got %q", got)
	}
	if string(msg.Body) != "body line 1\nbody line 2\n" {
		t.Errorf("unexpected body %q", msg.Body)
	}
}

func TestParse_SkipsEnvelopeLine(t *testing.T) {
	msg, err := ParseBytes([]byte("From alice@example.com Mon Jan  2 15:04:05 2006\n" + testMessage))
	if err != nil {
		t.Fatal(err)
	}
	if n := msg.HeaderCount(); n != 3 {
		t.Errorf("expected 3 header fields, got %d", n)
	}
}

func TestParse_Empty(t *testing.T) {
	msg, err := ParseBytes(nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.HeaderCount() != 0 || len(msg.Body) != 0 {
		t.Errorf("expected empty message, got %d headers, body %q", msg.HeaderCount(), msg.Body)
	}
}

func TestParse_Lenient(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		headers int
		body    string
	}{
		{"no header", "just some text output\n", 0, "just some text output\n"},
		{"body after non-field line", "Subject: hi\nnot a field\nmore\n", 1, "not a field\nmore\n"},
		{"leading continuation", " folded\nSubject: hi\n", 0, " folded\nSubject: hi\n"},
		{"header without separator", "Subject: hi", 1, ""},
		{"empty header", "\nbody\n", 0, "body\n"},
		{"folded field", "Subject: a\n b\n\nbody\n", 1, "body\n"},
	}
	for _, tt := range tests {
		msg, err := ParseBytes([]byte(tt.input))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if n := msg.HeaderCount(); n != tt.headers {
			t.Errorf("%s: expected %d header fields, got %d", tt.name, tt.headers, n)
		}
		if string(msg.Body) != tt.body {
			t.Errorf("%s: expected body %q, got %q", tt.name, tt.body, msg.Body)
		}
	}
}

func TestSender_Presence(t *testing.T) {
	msg, err := ParseBytes([]byte(testMessage))
	if err != nil {
		t.Fatal(err)
	}
	if msg.HasSender {
		t.Error("parsed message must not carry an envelope sender")
	}
	msg.SetSender("")
	if !msg.HasSender || msg.Sender != "" {
		t.Errorf("expected null return path, got %q (present=%t)", msg.Sender, msg.HasSender)
	}

	dst := &Message{}
	dst.CopyAttrs(msg)
	if !dst.HasSender {
		t.Error("sender presence not copied")
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("spam score 5.0"), "spam score 5.0"},
		{[]byte("caf\xc3\xa9"), "caf\u00e9"},
		{[]byte("caf\xe9"), "caf\u00e9"},
		{[]byte("\x93quoted\x94"), "\u201cquoted\u201d"},
		{[]byte("a\tb\x01c"), "a\tbc"},
	}
	for _, tt := range tests {
		if got := DecodeText(tt.in); got != tt.want {
			t.Errorf("DecodeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddHeader_Appends(t *testing.T) {
	msg, err := ParseBytes([]byte(testMessage))
	if err != nil {
		t.Fatal(err)
	}
	msg.AddHeader("X-Test", "first")
	msg.AddHeader("X-Test", "second")

	if n := msg.HeaderCount(); n != 5 {
		t.Fatalf("expected 5 header fields, got %d", n)
	}

	var keys, values []string
	fields := msg.Header.Fields()
	for fields.Next() {
		keys = append(keys, fields.Key())
		values = append(values, fields.Value())
	}
	want := []string{"Subject", "From", "To", "X-Test", "X-Test"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, keys)
	}
	if values[3] != "first" || values[4] != "second" {
		t.Errorf("expected appended values in order, got %v", values[3:])
	}
}

func TestFlatten_Native(t *testing.T) {
	msg, err := ParseBytes([]byte(strings.ReplaceAll(testMessage, "\n", "\r\n")))
	if err != nil {
		t.Fatal(err)
	}
	out, err := msg.Flatten(FlattenOptions{LineEnding: LF})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != testMessage {
		t.Errorf("expected LF round trip\n got: %q\nwant: %q", out, testMessage)
	}
}

func TestFlatten_CanonicalWithTrace(t *testing.T) {
	msg, err := ParseBytes([]byte(testMessage))
	if err != nil {
		t.Fatal(err)
	}
	msg.Sender = "alice@example.com"
	msg.Recipient = "bob-ext@example.org"
	msg.SetProvenance(Provenance{ReceivedFrom: "pop.example.org", ReceivedWith: "POP3", ReceivedBy: "localhost"})

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out, err := msg.Flatten(FlattenOptions{
		DeliveredTo: true,
		Received:    true,
		IncludeFrom: true,
		LineEnding:  CRLF,
		Time:        ts,
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(string(out), "\r\n")
	if lines[0] != "From alice@example.com Fri Mar  1 12:00:00 2024" {
		t.Errorf("unexpected envelope line %q", lines[0])
	}
	if lines[1] != "Delivered-To: bob-ext@example.org" {
		t.Errorf("unexpected first field %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "Received: from pop.example.org by localhost") {
		t.Errorf("unexpected Received field %q", lines[2])
	}
	if strings.Contains(strings.ReplaceAll(string(out), "\r\n", ""), "\n") {
		t.Error("found bare LF in canonical output")
	}
	if msg.HeaderCount() != 3 {
		t.Errorf("flatten must not modify the message, got %d fields", msg.HeaderCount())
	}
}

func TestFlatten_NullSender(t *testing.T) {
	msg := New("", "")
	out, err := msg.Flatten(FlattenOptions{IncludeFrom: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "From MAILER-DAEMON ") {
		t.Errorf("unexpected envelope line %q", out)
	}
}

func TestCopyAttrs(t *testing.T) {
	orig := New("a@b.com", "c@d.com")
	orig.SetProvenance(Provenance{ReceivedFrom: "imap.d.com", ReceivedWith: "IMAP4-SSL", ReceivedBy: "host"})
	orig.Flags = []string{`\Seen`}

	dst := New("", "")
	dst.CopyAttrs(orig)
	if dst.Sender != "a@b.com" || dst.Recipient != "c@d.com" {
		t.Errorf("envelope not copied: %q %q", dst.Sender, dst.Recipient)
	}
	if dst.Provenance() != orig.Provenance() {
		t.Errorf("provenance not copied: %+v", dst.Provenance())
	}
	orig.Flags[0] = "changed"
	if dst.Flags[0] != `\Seen` {
		t.Error("flags must be copied, not shared")
	}
}

func TestAddressParts(t *testing.T) {
	tests := []struct {
		addr, local, domain string
	}{
		{"user@Example.COM", "user", "example.com"},
		{"weird@local@host.org", "weird@local", "host.org"},
		{"nodomain", "", "nodomain"},
	}
	for _, tt := range tests {
		if got := Local(tt.addr); got != tt.local {
			t.Errorf("Local(%q) = %q, want %q", tt.addr, got, tt.local)
		}
		if got := Domain(tt.addr); got != tt.domain {
			t.Errorf("Domain(%q) = %q, want %q", tt.addr, got, tt.domain)
		}
	}
}
