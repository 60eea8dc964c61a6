//go:build windows

package privileges

import "github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"

// Drop is a no-op on Windows (spec.md §6: "On non-POSIX silently
// ignored."), matching the original's AttributeError-and-ignore behavior
// when the privilege-drop syscalls don't exist on the platform.
func Drop(username string) error {
	if username != "" {
		rplog.Named("privileges").Sugar().Debugf("--user %q ignored: privilege drop is POSIX-only", username)
	}
	return nil
}
