//go:build unix && !linux

package privileges

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// Drop switches the process to username's uid/gid. Capability retention
// is a Linux-specific concept (CAP_NET_BIND_SERVICE, capset(2)); on other
// POSIX systems there is nothing to retain, so --user is only useful here
// if privileged ports are bound before calling Drop.
func Drop(username string) error {
	if username == "" {
		return nil
	}

	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", username, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parsing uid for %q: %w", username, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parsing gid for %q: %w", username, err)
	}

	if err := unix.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("setting supplementary groups: %w", err)
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("dropping to gid %d: %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("dropping to uid %d: %w", uid, err)
	}

	rplog.Named("privileges").Sugar().Infof("dropped privileges to user %q (uid=%d, gid=%d)", username, uid, gid)
	return nil
}
