// Package pidfile implements the single-instance guard: a PID file +
// flock at a well-known path prevents two daemons from writing to the
// same hardware simultaneously. No pack example repo carries this
// exact concern, so it is built directly against golang.org/x/sys/unix's
// flock wrapper - already a direct dependency of this module via the
// rest of the stack - rather than hand-rolling a raw syscall.Flock call.
package pidfile

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// PidFile holds an exclusive, non-blocking flock on path for the
// lifetime of the process that successfully acquires it.
type PidFile struct {
	path string
	file *os.File
}

// Acquire opens path, writes the current PID, and takes an exclusive
// non-blocking flock on it. If another process already holds the lock,
// Acquire returns an error identifying that process's PID (best-effort
// - the file content may be stale if that process did not exit
// cleanly).
func Acquire(path string) (*PidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening pidfile %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		return nil, fmt.Errorf("another instance is already running (pid %s): %w", string(data), err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &PidFile{path: path, file: f}, nil
}

// Release drops the lock, closes, and removes the pid file. Safe to
// call on shutdown even if removal races with another process's
// Acquire - the flock itself, not the file's existence, is the source
// of truth.
func (p *PidFile) Release() error {
	defer func() { _ = p.file.Close() }()
	_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	return os.Remove(p.path)
}
