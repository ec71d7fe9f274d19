package adapter

import (
	"fmt"
	"io"
	"sync"
)

// sessionLog appends lines to the main log and mirrors them to the operator.
// A single mutex serializes both writes so each line lands whole and in the
// same order in the file and on screen.
type sessionLog struct {
	mu     sync.Mutex
	file   io.WriteCloser
	mirror io.Writer
}

func newSessionLog(file io.WriteCloser, mirror io.Writer) *sessionLog {
	if mirror == nil {
		mirror = io.Discard
	}

	return &sessionLog{file: file, mirror: mirror}
}

func (l *sessionLog) Log(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("session log is closed")
	}

	_, _ = fmt.Fprintln(l.mirror, line)

	if _, err := fmt.Fprintln(l.file, line); err != nil {
		return fmt.Errorf("append to main log: %w", err)
	}

	return nil
}

func (l *sessionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil

	return err
}

// NormalizeExt returns ext with a leading separator, or empty for "" and ".".
func NormalizeExt(ext string) string {
	switch {
	case ext == "" || ext == ".":
		return ""
	case ext[0] == '.':
		return ext
	default:
		return "." + ext
	}
}
