package filter

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tkingovr/procfilter/internal/policy"
)

func TestNew_Validation(t *testing.T) {
	exe := writeScript(t, "cat\n")
	plain := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(plain, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := ""

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"defaults", Config{Type: TypeExternal, Path: exe}, nil},
		{"missing type", Config{Path: exe}, nil},
		{"unknown type", Config{Type: "procmail", Path: exe}, nil},
		{"missing path", Config{Type: TypeExternal}, nil},
		{"not executable", Config{Type: TypeExternal, Path: plain}, nil},
		{"missing file", Config{Type: TypeClassifier, Path: filepath.Join(t.TempDir(), "nope")}, nil},
		{"overlapping sets", Config{Type: TypeExternal, Path: exe, ExitcodesKeep: []int{0, 1}, ExitcodesDrop: []int{1}}, policy.ErrSetsIntersect},
		{"empty keep", Config{Type: TypeExternal, Path: exe, ExitcodesKeep: []int{}}, policy.ErrEmptyKeep},
		{"out of range", Config{Type: TypeExternal, Path: exe, ExitcodesDrop: []int{300}}, policy.ErrExitCode},
		{"reserved status", Config{Type: TypeExternal, Path: exe, ExitcodesKeep: []int{0, 127}}, policy.ErrExitCode},
		{"conf_break on external", Config{Type: TypeExternal, Path: exe, ConfBreak: &empty}, nil},
		{"arguments on tmda", Config{Type: TypeTMDA, Path: exe, Arguments: []string{"-x"}}, nil},
		{"exitcodes on tmda", Config{Type: TypeTMDA, Path: exe, ExitcodesDrop: []int{100}}, nil},
		{"empty conf_break", Config{Type: TypeTMDA, Path: exe, ConfBreak: &empty}, nil},
		{"bad outcome policy", Config{Type: TypeExternal, Path: exe, OutcomePolicy: plain}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, testDeps(t, 1000))
			if tt.name == "defaults" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	exe := writeScript(t, "cat\n")
	f := mustFilter(t, Config{Name: "spam", Type: TypeClassifier, Path: exe}, testDeps(t, 1000))

	opts := f.Options()
	if !reflect.DeepEqual(opts.ExitCodes.Keep(), []int{0}) {
		t.Errorf("expected keep [0], got %v", opts.ExitCodes.Keep())
	}
	if !reflect.DeepEqual(opts.ExitCodes.Drop(), []int{99, 100}) {
		t.Errorf("expected drop [99 100], got %v", opts.ExitCodes.Drop())
	}
	if opts.Engine != policy.Engine(opts.ExitCodes) {
		t.Error("expected exit code sets as the outcome engine")
	}

	tmda := mustFilter(t, Config{Type: TypeTMDA, Path: exe}, testDeps(t, 1000)).Options()
	if tmda.ConfBreak != DefaultConfBreak {
		t.Errorf("expected conf_break %q, got %q", DefaultConfBreak, tmda.ConfBreak)
	}
	if !reflect.DeepEqual(tmda.ExitCodes.Drop(), []int{99}) {
		t.Errorf("expected tmda drop [99], got %v", tmda.ExitCodes.Drop())
	}
}

func TestNew_TMDADefaultPath(t *testing.T) {
	_, err := New(Config{Type: TypeTMDA}, testDeps(t, 1000))
	if _, statErr := os.Stat(DefaultTMDAPath); statErr == nil {
		t.Skip("tmda-filter is installed")
	}
	if err == nil || !strings.Contains(err.Error(), DefaultTMDAPath) {
		t.Errorf("expected error naming %s, got %v", DefaultTMDAPath, err)
	}
}

func TestConfString(t *testing.T) {
	exe := writeScript(t, "cat\n")
	f := mustFilter(t, Config{
		Name:      "spam",
		Type:      TypeExternal,
		Path:      exe,
		Arguments: []string{"-f%(sender)"},
		User:      "nobody",
	}, testDeps(t, 1000))

	got := f.ConfString()
	for _, want := range []string{
		"path=" + exe,
		`arguments=["-f%(sender)"]`,
		"exitcodes_keep=[0]",
		"exitcodes_drop=[99 100]",
		"user=nobody",
		"ignore_header_shrinkage=false",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if strings.Contains(got, "conf_break") {
		t.Errorf("conf_break is not an external option: %q", got)
	}
}
