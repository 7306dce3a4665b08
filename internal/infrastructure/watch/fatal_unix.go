//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// isFatalFsnotifyError reports inotify resource exhaustion, after which the
// watcher cannot recover:
//   - ENOSPC: fs.inotify.max_user_watches exceeded
//   - EMFILE: per-process file descriptor limit
//   - ENFILE: system-wide file descriptor limit
func isFatalFsnotifyError(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
