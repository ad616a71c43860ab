package worker

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/puzzler-io/puzzler/internal/domain"
)

// Supervisor spawns worker subprocesses with fresh address spaces so no
// broker or KV connection is shared across fork. Each child re-executes the
// current binary with the single-worker flag.
type Supervisor struct {
	count      int
	singleFlag string
	grace      time.Duration
	log        *slog.Logger
}

// NewSupervisor configures a supervisor for count children terminated with
// the given grace period on shutdown.
func NewSupervisor(count int, grace time.Duration, log *slog.Logger) *Supervisor {
	if count < 1 {
		count = 1
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{count: count, singleFlag: "-single", grace: grace, log: log}
}

type childExit struct {
	idx int
	pid int
	err error
}

// Run spawns the children and blocks until they all exit. Cancelling ctx
// forwards SIGTERM, waits out the grace period, then kills survivors. A
// crashed child is logged but not restarted.
func (s *Supervisor) Run(ctx domain.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("supervisor: resolve executable: %w", err)
	}

	alive := make(map[int]*exec.Cmd, s.count)
	exits := make(chan childExit, s.count)
	for i := 0; i < s.count; i++ {
		cmd := exec.Command(exe, s.singleFlag)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			s.terminate(alive)
			s.drain(alive, exits)
			return fmt.Errorf("supervisor: start worker %d: %w", i, err)
		}
		alive[i] = cmd
		s.log.Info("worker spawned", slog.Int("worker", i), slog.Int("pid", cmd.Process.Pid))

		go func(idx int, cmd *exec.Cmd) {
			exits <- childExit{idx: idx, pid: cmd.Process.Pid, err: cmd.Wait()}
		}(i, cmd)
	}

	for len(alive) > 0 {
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested, signalling workers", slog.Int("alive", len(alive)))
			s.terminate(alive)
			s.drain(alive, exits)
			return nil
		case e := <-exits:
			delete(alive, e.idx)
			if e.err != nil {
				// No automatic restart; a crash loop would mask the real fault.
				s.log.Error("worker crashed",
					slog.Int("worker", e.idx),
					slog.Int("pid", e.pid),
					slog.Any("error", e.err))
			} else {
				s.log.Info("worker exited", slog.Int("worker", e.idx), slog.Int("pid", e.pid))
			}
		}
	}
	return nil
}

func (s *Supervisor) terminate(alive map[int]*exec.Cmd) {
	for idx, cmd := range alive {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.Warn("signal worker failed", slog.Int("worker", idx), slog.Any("error", err))
		}
	}
}

// drain waits up to the grace period for the signalled children, then kills
// whatever is left.
func (s *Supervisor) drain(alive map[int]*exec.Cmd, exits <-chan childExit) {
	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()

	for len(alive) > 0 {
		select {
		case e := <-exits:
			delete(alive, e.idx)
			s.log.Info("worker stopped", slog.Int("worker", e.idx), slog.Int("pid", e.pid))
		case <-deadline.C:
			for idx, cmd := range alive {
				s.log.Warn("worker did not stop in time, killing",
					slog.Int("worker", idx),
					slog.Int("pid", cmd.Process.Pid))
				_ = cmd.Process.Kill()
			}
			for len(alive) > 0 {
				e := <-exits
				delete(alive, e.idx)
			}
		}
	}
}
