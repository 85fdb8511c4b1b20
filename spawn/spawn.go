package spawn

import (
	"fmt"
	"os/exec"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Opts describes one detached worker process. Macros are passed on the
// command line as key=value configuration overrides.
type Opts struct {
	Executable string
	WorkingDir string
	Macros     map[string]string
}

type SpawnApi interface {
	Spawn(opts Opts) (int, error)
	Alive(pid int) bool
}

type localSpawner struct {
}

func NewLocalSpawner() *localSpawner {
	return &localSpawner{}
}

// Spawn starts a detached process and returns its pid. It either returns
// having started the process or fails synchronously; there is no in-flight
// cancellation.
func (s *localSpawner) Spawn(opts Opts) (int, error) {
	keys := make([]string, 0, len(opts.Macros))
	for k := range opts.Macros {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%s", k, opts.Macros[k]))
	}

	cmd := exec.Command(opts.Executable, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrapf(err, "cannot spawn %s", opts.Executable)
	}
	pid := cmd.Process.Pid

	// The worker outlives us; reap it from a goroutine so it does not
	// linger as a zombie while this process is still around.
	go cmd.Wait()

	log.Infof("Spawned %s with pid %d", opts.Executable, pid)
	return pid, nil
}

// Alive probes a pid with signal 0. EPERM still means the process exists.
func (s *localSpawner) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
