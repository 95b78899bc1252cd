package logrotate

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/pmr-run/pmr/internal/errdef"
)

// TailLines returns the last n lines of the file. A missing file yields an
// empty slice; n <= 0 returns every line.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.KindIO, err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	lines := make([]string, 0, 64)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errdef.Wrap(errdef.KindIO, err, "read %s", path)
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow streams bytes appended to path into w until ctx is cancelled.
// It starts at the current end of file and polls for growth; if the file
// shrinks (rotation), it restarts from the beginning of the new file.
func Follow(ctx context.Context, path string, w io.Writer) error {
	var offset int64
	if fi, err := os.Stat(path); err == nil {
		offset = fi.Size()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		fi, err := os.Stat(path)
		if os.IsNotExist(err) {
			offset = 0
			continue
		}
		if err != nil {
			return errdef.Wrap(errdef.KindIO, err, "stat %s", path)
		}
		if fi.Size() < offset {
			offset = 0
		}
		if fi.Size() == offset {
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			return errdef.Wrap(errdef.KindIO, err, "open %s", path)
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return errdef.Wrap(errdef.KindIO, err, "seek %s", path)
		}
		n, err := io.Copy(w, f)
		_ = f.Close()
		if err != nil {
			return errdef.Wrap(errdef.KindIO, err, "copy %s", path)
		}
		offset += n
	}
}
