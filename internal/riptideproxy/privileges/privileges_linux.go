//go:build linux

// Package privileges implements the POSIX privilege-drop CLI feature
// (spec.md §6, SUPPLEMENTED FEATURE 4): when started as root with
// --user, drop to the named user while keeping CAP_NET_BIND_SERVICE, so
// privileged ports can still be bound after the drop; every other
// capability, CAP_SETUID included, is dropped. Drop itself binds nothing,
// and CAP_NET_BIND_SERVICE stays set once it returns. Grounded on
// caddy's listen_linux.go/listen_unix.go for the golang.org/x/sys/unix
// raw-syscall style used here for the Linux-only capset(2) call, which
// x/sys/unix does not wrap at a higher level.
package privileges

import (
	"fmt"
	"os/user"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// capHeader and capData mirror struct __user_cap_header_struct /
// __user_cap_data_struct from linux/capability.h; x/sys/unix exposes the
// SYS_CAPSET syscall number but not a typed wrapper around these structs.
type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

const (
	linuxCapabilityVersion3 = 0x20080522
	capNetBindService       = 10 // CAP_NET_BIND_SERVICE, linux/capability.h
)

// Drop switches the process to username's uid/gid, retaining only
// CAP_NET_BIND_SERVICE (spec.md §6). A blank username is a no-op (the
// process stays as whatever user started it).
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

	// PR_SET_KEEPCAPS must be set before the uid switch, or the kernel
	// clears the process's capability sets entirely on setuid.
	if err := unix.Prctl(unix.PR_SET_KEEPCAPS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("setting PR_SET_KEEPCAPS: %w", err)
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

	// Re-narrow the capability sets down to CAP_NET_BIND_SERVICE only -
	// this is also where CAP_SETUID is dropped, since it is simply absent
	// from the mask written here.
	hdr := capHeader{version: linuxCapabilityVersion3, pid: 0}
	data := capData{
		effective: 1 << capNetBindService,
		permitted: 1 << capNetBindService,
	}
	if _, _, errno := unix.Syscall(unix.SYS_CAPSET,
		uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data)), 0); errno != 0 {
		return fmt.Errorf("restoring CAP_NET_BIND_SERVICE: %w", errno)
	}

	rplog.Named("privileges").Sugar().Infof("dropped privileges to user %q (uid=%d, gid=%d), retaining CAP_NET_BIND_SERVICE", username, uid, gid)
	return nil
}
