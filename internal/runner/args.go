package runner

import (
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
)

// Argv returns the exec vector [path, path, args...]: element 0 is the file
// to execute and the rest is the process argument list, so the child sees
// its own path as argv[0].
func Argv(path string, args []string) []string {
	argv := make([]string, 0, len(args)+2)
	argv = append(argv, path, path)
	return append(argv, args...)
}

// Substitute expands each argument template: home directory references
// first, then %(name) tokens from info. Replacement is a single literal pass,
// so text coming from info is never expanded again and never reaches a shell.
// Tokens without a value in info are left as they are.
func Substitute(templates []string, info map[string]string) []string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "%("+k+")", info[k])
	}
	replacer := strings.NewReplacer(pairs...)

	out := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, replacer.Replace(ExpandHome(tmpl)))
	}
	return out
}

// ExpandHome replaces a leading "~" or "~user" with the matching home
// directory. The argument is returned unchanged if the user is unknown.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	name, rest, _ := strings.Cut(path[1:], "/")
	var home string
	if name == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		home = h
	} else {
		u, err := user.Lookup(name)
		if err != nil {
			return path
		}
		home = u.HomeDir
	}

	if rest == "" {
		return home
	}
	return filepath.Join(home, rest)
}
