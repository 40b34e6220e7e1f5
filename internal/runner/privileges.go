package runner

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// Privileges is the privilege context of the calling process. It is passed
// in rather than read from the OS so the root gate can be tested without
// running as root.
type Privileges interface {
	Geteuid() int
	Getegid() int
	// LookupUser resolves a user name (or numeric id) to its uid and primary gid.
	LookupUser(name string) (uid, gid uint32, err error)
	// LookupGroup resolves a group name (or numeric id) to its gid.
	LookupGroup(name string) (gid uint32, err error)
}

// OSPrivileges reads the privilege context from the running process.
type OSPrivileges struct{}

func (OSPrivileges) Geteuid() int { return os.Geteuid() }
func (OSPrivileges) Getegid() int { return os.Getegid() }

func (OSPrivileges) LookupUser(name string) (uint32, uint32, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var uerr error
		if u, uerr = user.LookupId(name); uerr != nil {
			return 0, 0, err
		}
	}
	uid, err := parseID(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %q: %w", name, err)
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %q: %w", name, err)
	}
	return uid, gid, nil
}

func (OSPrivileges) LookupGroup(name string) (uint32, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		var gerr error
		if g, gerr = user.LookupGroupId(name); gerr != nil {
			return 0, err
		}
	}
	gid, err := parseID(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("group %q: %w", name, err)
	}
	return gid, nil
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint32(id), nil
}

// PrivilegeError reports a refusal to run an external command with
// superuser rights.
type PrivilegeError struct {
	Path string
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("refuse to invoke external command %s as root by default", e.Path)
}

// CheckRoot refuses to run commands while the caller is the superuser, unless
// allowRoot is set or a run-as user is configured.
func CheckRoot(priv Privileges, path string, allowRoot bool, runAs string) error {
	if priv.Geteuid() == 0 && !allowRoot && runAs == "" {
		return &PrivilegeError{Path: path}
	}
	return nil
}

// credential resolves the run-as identity. It returns nil when neither user
// nor group is set, or when they resolve to the current effective identity.
// Without a group, the user's primary group is used; without a user, the
// current effective uid is kept. Only root may replace supplementary groups.
func credential(priv Privileges, userName, groupName string) (*syscall.Credential, error) {
	if userName == "" && groupName == "" {
		return nil, nil
	}

	euid, egid := uint32(priv.Geteuid()), uint32(priv.Getegid())
	cred := &syscall.Credential{
		Uid:         euid,
		Gid:         egid,
		NoSetGroups: euid != 0,
	}
	if userName != "" {
		uid, gid, err := priv.LookupUser(userName)
		if err != nil {
			return nil, fmt.Errorf("looking up user %q: %w", userName, err)
		}
		cred.Uid, cred.Gid = uid, gid
	}
	if groupName != "" {
		gid, err := priv.LookupGroup(groupName)
		if err != nil {
			return nil, fmt.Errorf("looking up group %q: %w", groupName, err)
		}
		cred.Gid = gid
	}
	if cred.Uid == euid && cred.Gid == egid {
		return nil, nil
	}
	return cred, nil
}
