package variables

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"github.com/spf13/afero"
)

const (
	logTimeFormat  = "2006-01-02 15:04:05"
	defaultDirPerm = 0o755
	logFilePerm    = 0o644
)

// Log is the append-only variables.txt mirror: one "timestamp, name, value"
// line per write.
type Log struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	now  func() time.Time
}

func NewLog(fs afero.Fs, path string) *Log {
	return &Log{fs: fs, path: path, now: time.Now}
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Append(name string, v Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.appendLocked(name, v)
}

func (l *Log) appendLocked(name string, v Value) error {
	errFactory := errors.New()

	if err := l.fs.MkdirAll(filepath.Dir(l.path), defaultDirPerm); err != nil {
		return errFactory.Wrap(ErrLogWrite, err)
	}

	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
	if err != nil {
		return errFactory.Wrap(ErrLogWrite, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s, %s, %s\n", l.now().Format(logTimeFormat), name, v)
	if _, err := f.WriteString(line); err != nil {
		return errFactory.Wrap(ErrLogWrite, err)
	}

	return nil
}

// Locked runs fn while no appends can happen. Persistence uses it to
// copy, verify and truncate the log atomically with respect to writers.
func (l *Log) Locked(fn func(fs afero.Fs, path string) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn(l.fs, l.path)
}

// AppendAll writes every value in name order.
func (l *Log) AppendAll(values map[string]Value, names []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range names {
		v, ok := values[name]
		if !ok {
			continue
		}
		if err := l.appendLocked(name, v); err != nil {
			return err
		}
	}

	return nil
}
