// Package singleton enforces that only one obssync process runs per
// user session, via an exclusive file lock. Grounded on the teacher's
// internal/instance (flock on unix, LockFileEx on windows).
package singleton

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const lockFileName = "obssync.lock"

// Lock represents a held singleton lock. Release it on shutdown.
type Lock struct {
	fd   lockHandle
	path string
}

// Acquire tries to obtain the exclusive process lock in dir. Returns an
// error naming the PID of the already-running instance when available.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)

	fd, err := tryLock(path)
	if err != nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			pid := strings.TrimSpace(string(data))
			if pid != "" {
				return nil, fmt.Errorf("another obssync instance is already running (pid %s)", pid)
			}
		}
		return nil, fmt.Errorf("another obssync instance is already running")
	}

	writePID(fd, path, strconv.Itoa(os.Getpid()))
	return &Lock{fd: fd, path: path}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	unlock(l.fd)
	os.Remove(l.path)
}
