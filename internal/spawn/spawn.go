package spawn

import (
	"os"
	"os/exec"
	"sort"

	"github.com/pmr-run/pmr/internal/errdef"
)

const logFilePerm = 0o600

// Options describes a single detached child to launch.
type Options struct {
	Command    string
	Args       []string
	Env        map[string]string // child environment, verbatim; nothing inherited
	WorkDir    string            // empty inherits the supervisor's cwd
	StdoutPath string
	StderrPath string // may equal StdoutPath for merged capture
}

// Spawn launches the child in a new session with stdin from /dev/null and
// stdout/stderr appended to the given log files, then returns its pid
// without waiting. The supervisor-side file handles are closed before
// returning; Go opens them close-on-exec so nothing leaks into the child
// beyond the three stdio descriptors.
//
// On failure a "pmr: spawn failed" marker is appended to the stderr log so
// the failure is visible through the ordinary log pipeline.
func Spawn(opts Options) (int, error) {
	outF, err := os.OpenFile(opts.StdoutPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, logFilePerm)
	if err != nil {
		return 0, errdef.Wrap(errdef.KindIO, err, "open stdout log %s", opts.StdoutPath)
	}
	defer func() { _ = outF.Close() }()

	errF := outF
	if opts.StderrPath != opts.StdoutPath {
		errF, err = os.OpenFile(opts.StderrPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, logFilePerm)
		if err != nil {
			return 0, errdef.Wrap(errdef.KindIO, err, "open stderr log %s", opts.StderrPath)
		}
		defer func() { _ = errF.Close() }()
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return 0, errdef.Wrap(errdef.KindIO, err, "open %s", os.DevNull)
	}
	defer func() { _ = devNull.Close() }()

	// #nosec G204 -- the command is operator-supplied by design
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = flattenEnv(opts.Env)
	cmd.Stdin = devNull
	cmd.Stdout = outF
	cmd.Stderr = errF
	cmd.SysProcAttr = detachAttrs()

	if err := cmd.Start(); err != nil {
		_, _ = errF.WriteString("pmr: spawn failed: " + err.Error() + "\n")
		return 0, errdef.Wrap(errdef.KindSpawn, err, "spawn %s", opts.Command)
	}
	pid := cmd.Process.Pid
	// The child is a session leader now; liveness is tracked by pid, not
	// by this handle.
	_ = cmd.Process.Release()
	return pid, nil
}

// flattenEnv renders the map as KEY=VALUE pairs in stable order. The child
// sees exactly this environment, per the isolation contract.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
