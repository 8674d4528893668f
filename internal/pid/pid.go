package pid

import (
	"os"
	"path/filepath"
	"strconv"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"github.com/gofrs/flock"
)

const (
	pidFile = "rigctl.pid"
	dirPerm = 0o755
)

// File is a held PID file. Only one controller may drive the rig at a time,
// so the file is guarded by an exclusive advisory lock for its lifetime.
type File struct {
	path string
	lock *flock.Flock
}

// Path returns the default PID file location inside dir, or the system
// temporary directory when dir is empty.
func Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, pidFile)
}

// Write locks the PID file at path and records the current process ID in it.
// It fails with ErrAlreadyRunning if another process holds the lock.
func Write(path string) (*File, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}
	if !locked {
		owner, _ := os.ReadFile(path)
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, string(owner))
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		_ = lock.Unlock()
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &File{path: path, lock: lock}, nil
}

// Remove deletes the PID file and releases the lock.
func (f *File) Remove() error {
	errFactory := errors.New()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		_ = f.lock.Unlock()
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := f.lock.Unlock(); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
