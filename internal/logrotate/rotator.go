package logrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmr-run/pmr/internal/errdef"
)

const (
	// DefaultMaxSize is the rotation threshold for a live log file.
	DefaultMaxSize = 10 * 1024 * 1024
	// DefaultKeepCount is how many rotated generations survive.
	DefaultKeepCount = 5
)

// Rotator rotates per-process log files by renaming generations:
// name.log -> name.1.log -> name.2.log ... discarding beyond KeepCount.
//
// Rotation happens while the child may still hold the live fd open. The
// rename does not disturb that fd: the child keeps appending to the
// renamed file until the process is restarted, at which point the fresh
// name.log is opened. This is the documented policy; the supervisor never
// interposes itself between the child and its output.
type Rotator struct {
	MaxSize   int64
	KeepCount int
}

func New(maxSize int64, keepCount int) Rotator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if keepCount <= 0 {
		keepCount = DefaultKeepCount
	}
	return Rotator{MaxSize: maxSize, KeepCount: keepCount}
}

// RotateIfNeeded rotates when the live file has reached MaxSize.
// It reports whether a rotation happened.
func (r Rotator) RotateIfNeeded(logPath string) (bool, error) {
	fi, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errdef.Wrap(errdef.KindIO, err, "stat %s", logPath)
	}
	if fi.Size() < r.MaxSize {
		return false, nil
	}
	return true, r.Rotate(logPath)
}

// Rotate shifts the generations once, unconditionally, and creates a
// fresh empty live file.
func (r Rotator) Rotate(logPath string) error {
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return nil
	}
	dir, stem := splitLogPath(logPath)

	// Shift name.k.log upward from the oldest; the generation that would
	// exceed KeepCount is discarded.
	oldest := filepath.Join(dir, fmt.Sprintf("%s.%d.log", stem, r.KeepCount))
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return errdef.Wrap(errdef.KindIO, err, "discard %s", oldest)
		}
	}
	for i := r.KeepCount - 1; i >= 1; i-- {
		from := filepath.Join(dir, fmt.Sprintf("%s.%d.log", stem, i))
		to := filepath.Join(dir, fmt.Sprintf("%s.%d.log", stem, i+1))
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return errdef.Wrap(errdef.KindIO, err, "shift %s", from)
			}
		}
	}

	first := filepath.Join(dir, stem+".1.log")
	if err := os.Rename(logPath, first); err != nil {
		return errdef.Wrap(errdef.KindIO, err, "rotate %s", logPath)
	}
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return errdef.Wrap(errdef.KindIO, err, "create fresh %s", logPath)
	}
	return f.Close()
}

// RotatedFiles lists existing generations oldest-last (name.1.log first).
func (r Rotator) RotatedFiles(logPath string) []string {
	dir, stem := splitLogPath(logPath)
	out := make([]string, 0, r.KeepCount)
	for i := 1; i <= r.KeepCount; i++ {
		p := filepath.Join(dir, fmt.Sprintf("%s.%d.log", stem, i))
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func splitLogPath(logPath string) (dir, stem string) {
	dir = filepath.Dir(logPath)
	stem = strings.TrimSuffix(filepath.Base(logPath), ".log")
	return dir, stem
}
