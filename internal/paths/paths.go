package paths

import (
	"os"
	"path/filepath"

	"github.com/pmr-run/pmr/internal/errdef"
)

// Layout resolves and owns the on-disk directories used by pmr.
// Everything lives under the data root (default ~/.pmr) and is created
// with owner-only permissions on first use.
type Layout struct {
	DataDir string
	LogDir  string
}

const (
	dirPerm = 0o700

	DBFileName    = "processes.db"
	ServeLogName  = "serve.log"
	ServePIDName  = "serve.pid"
	defaultDirEnv = "PMR_HOME"
)

// Default resolves the layout from $PMR_HOME or $HOME/.pmr.
func Default() Layout {
	root := os.Getenv(defaultDirEnv)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		root = filepath.Join(home, ".pmr")
	}
	return Layout{DataDir: root, LogDir: filepath.Join(root, "logs")}
}

// Ensure creates the data and log directories if absent.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.DataDir, l.LogDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return errdef.Wrap(errdef.KindIO, err, "create directory %s", dir)
		}
	}
	return nil
}

// EnsureLogDir creates a per-process log directory if absent.
func EnsureLogDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errdef.Wrap(errdef.KindIO, err, "create log directory %s", dir)
	}
	return nil
}

func (l Layout) DBPath() string { return filepath.Join(l.DataDir, DBFileName) }

func (l Layout) ServeLogPath() string { return filepath.Join(l.DataDir, ServeLogName) }

// ProcessLogPath returns the primary log file for a process.
// Rotated generations are <name>.1.log .. <name>.k.log next to it.
func ProcessLogPath(logDir, name string) string {
	return filepath.Join(logDir, name+".log")
}
