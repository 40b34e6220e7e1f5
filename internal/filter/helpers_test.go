package filter

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tkingovr/procfilter/internal/message"
	"github.com/tkingovr/procfilter/internal/runner"
)

type fakePrivileges struct {
	euid int
}

func (p fakePrivileges) Geteuid() int { return p.euid }
func (p fakePrivileges) Getegid() int { return p.euid }

func (p fakePrivileges) LookupUser(string) (uint32, uint32, error) { return 1000, 1000, nil }
func (p fakePrivileges) LookupGroup(string) (uint32, error)        { return 1000, nil }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testDeps(t *testing.T, euid int) Deps {
	t.Helper()
	logger := newTestLogger()
	return Deps{
		Runner: runner.NewRunner(logger, fakePrivileges{euid: euid}, runner.WithTempDir(t.TempDir())),
		Logger: logger,
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustFilter(t *testing.T, cfg Config, deps Deps) Filter {
	t.Helper()
	f, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

const testMessage = "From: alice@example.org\nTo: bob@example.com\nSubject: hello\n\nbody\n"

func newTestMessage(t *testing.T) *message.Message {
	t.Helper()
	msg, err := message.ParseBytes([]byte(testMessage))
	if err != nil {
		t.Fatal(err)
	}
	msg.SetSender("alice@example.org")
	msg.Recipient = "bob-lists-go@example.com"
	return msg
}

var testProvenance = message.Provenance{
	ReceivedFrom: "pop.example.org",
	ReceivedWith: "POP3",
	ReceivedBy:   "localhost",
}

var flattenNative = message.FlattenOptions{LineEnding: message.LF}
