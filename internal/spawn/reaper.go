package spawn

import (
	"sync"

	"github.com/pmr-run/pmr/internal/errdef"
)

func errdefSignal(pid int, sig string, err error) error {
	return errdef.Wrap(errdef.KindIO, err, "send %s to pid %d", sig, pid)
}

// Reaper tracks direct-child pids whose exit status has not been collected
// yet. Spawned children are session leaders the supervisor never blocks on,
// so collection happens through periodic non-blocking waits; a pid stays in
// the set until a wait succeeds or the kernel says it is not ours.
type Reaper struct {
	mu   sync.Mutex
	pids map[int]struct{}
}

func NewReaper() *Reaper {
	return &Reaper{pids: make(map[int]struct{})}
}

// Track registers a pid for later reaping.
func (r *Reaper) Track(pid int) {
	if pid <= 0 {
		return
	}
	r.mu.Lock()
	r.pids[pid] = struct{}{}
	r.mu.Unlock()
}

// Reap attempts to collect one pid immediately. The pid is removed from
// the set when the wait succeeds or the process is not our child.
func (r *Reaper) Reap(pid int) bool {
	done := reapOnce(pid)
	if done {
		r.mu.Lock()
		delete(r.pids, pid)
		r.mu.Unlock()
	}
	return done
}

// Sweep reaps every tracked pid and returns the ones collected.
func (r *Reaper) Sweep() []int {
	r.mu.Lock()
	pids := make([]int, 0, len(r.pids))
	for pid := range r.pids {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	reaped := make([]int, 0, len(pids))
	for _, pid := range pids {
		if r.Reap(pid) {
			reaped = append(reaped, pid)
		}
	}
	return reaped
}

// Pending returns the number of pids still awaiting collection.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pids)
}
