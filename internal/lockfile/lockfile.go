// Package lockfile guards the sparkq daemon against double starts. The lock
// is a plain file holding the owner's PID: a live PID makes the lock valid,
// a dead one makes it stale and replaceable.
package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sparkq/sparkq/internal/common/apperr"
)

// Lock is a held PID lock. Release it on shutdown.
type Lock struct {
	path string
}

// PathFor returns the lock path used for a given database file. The lock
// sits next to the database so two instances sharing a database also share
// the lock.
func PathFor(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "sparkq.pid")
}

// Acquire takes the lock for the current process. A lock held by a live
// process is a conflict; a stale or unreadable lock file is replaced.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.Internal("failed to create lock directory", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				if werr == nil {
					werr = cerr
				}
				return nil, apperr.Internal("failed to write lock file", werr)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, apperr.Internal("failed to create lock file", err)
		}

		pid, rerr := Read(path)
		if rerr == nil && Alive(pid) {
			return nil, apperr.Conflictf("sparkq is already running (pid %d)", pid)
		}
		// Stale or corrupt lock. Remove it and try once more; losing the
		// race to another starter surfaces as a conflict on the retry.
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Internal("failed to remove stale lock file", err)
		}
	}
	return nil, apperr.Conflict("lock file is contended, try again")
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file, refusing to remove a lock that another
// process has taken over in the meantime.
func (l *Lock) Release() error {
	pid, err := Read(l.path)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return apperr.Conflictf("lock file %s is held by pid %d", l.path, pid)
	}
	return os.Remove(l.path)
}

// Read returns the PID recorded in the lock file.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, apperr.NotFound("lock file", path)
		}
		return 0, apperr.Internal("failed to read lock file", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, apperr.Validationf("lock file %s does not contain a PID", path)
	}
	return pid, nil
}

// Alive reports whether a process with the given PID exists. Signal 0
// probes for existence without delivering anything; EPERM still means the
// process is there.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
