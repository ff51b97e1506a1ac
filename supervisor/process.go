package supervisor

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	gopsprocess "github.com/shirou/gopsutil/process"
	"golang.org/x/sys/unix"
)

// ProcessHandler is the callable a Process trigger invokes at most once,
// when Poll receives its child's final exit code: handler(self, exit_code)
// in SPEC_FULL.md §3. An exit code collected by Shutdown is not passed to
// the handler.
type ProcessHandler func(p *Process, exitCode int)

// Process spawns a background worker at construction that launches and
// waits on a child process, reporting its exit code back to the supervisor
// tier through a buffered queue. State machine: RUNNING →
// (natural exit | terminate requested) → REPORTED → REMOVED
// (SPEC_FULL.md §4.5).
type Process struct {
	Base
	command string
	handler ProcessHandler

	// downstream carries the single TERMINATE sentinel, supervisor → worker.
	downstream chan struct{}
	// upstream carries the final exit code exactly once, worker → supervisor.
	upstream chan int

	cancel context.CancelFunc
	runID  string
}

func newProcessFromOptions(ctx *Context, opts Options) (Trigger, error) {
	base, err := newBase(ctx, "process", opts)
	if err != nil {
		return nil, err
	}

	command, err := key[string]("process", opts, "command")
	if err != nil {
		return nil, err
	}

	handler, err := key[ProcessHandler]("process", opts, "handler")
	if err != nil {
		return nil, err
	}

	runID, _ := uuid.GenerateUUID()
	workCtx, cancel := context.WithCancel(context.Background())

	p := &Process{
		Base:       base,
		command:    command,
		handler:    handler,
		downstream: make(chan struct{}, 1),
		upstream:   make(chan int, 1),
		cancel:     cancel,
		runID:      runID,
	}
	p.info("new process trigger", "command", command, "runID", runID)

	go p.run(workCtx)

	return p, nil
}

// run is the background worker. It tokenises command on whitespace, launches
// the child, and loops until either the child exits naturally or TERMINATE
// arrives on the downstream queue, pushing the final exit code onto the
// upstream queue exactly once (SPEC_FULL.md §4.5).
func (p *Process) run(workCtx context.Context) {
	tokens := strings.Fields(p.command)
	if len(tokens) == 0 {
		p.debug("worker", "runID", p.runID, "state", "spawn failed: empty command")
		p.upstream <- -1
		return
	}

	cmd := exec.Command(tokens[0], tokens[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Run the child in its own process group so TERMINATE can reach any
	// descendants it spawns, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		p.debug("worker", "runID", p.runID, "state", "spawn failed", "error", err)
		p.upstream <- -1
		return
	}
	p.debug("worker", "runID", p.runID, "state", "running", "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			code := exitCodeFromWaitErr(err)
			p.debug("worker", "runID", p.runID, "state", "reported", "exitCode", code)
			p.upstream <- code
			return

		case <-p.downstream:
			p.debug("worker", "runID", p.runID, "state", "terminate requested")
			terminateProcessGroup(cmd.Process)
			err := <-done
			code := exitCodeFromWaitErr(err)
			p.debug("worker", "runID", p.runID, "state", "reported", "exitCode", code)
			p.upstream <- code
			return

		case <-ticker.C:
			p.sampleResourceUsage(int32(cmd.Process.Pid))

		case <-workCtx.Done():
			// Defensive fallback: normal shutdown always sends TERMINATE
			// first, so this path is not expected to be load-bearing.
		}
	}
}

// exitCodeFromWaitErr normalises cmd.Wait's error into a plain exit code,
// treating spawn/wait failures uniformly as a negative exit code so the
// handler sees a single numeric contract (SPEC_FULL.md §7).
func exitCodeFromWaitErr(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// terminateProcessGroup sends SIGTERM to proc's process group, falling back
// to signalling the process directly. Errors are swallowed: if the process
// has already exited, that's the expected best-effort outcome
// (SPEC_FULL.md §4.5).
func terminateProcessGroup(proc *os.Process) {
	if proc == nil {
		return
	}
	if pgid, err := unix.Getpgid(proc.Pid); err == nil {
		_ = unix.Kill(-pgid, syscall.SIGTERM)
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
}

// sampleResourceUsage logs a best-effort CPU/RSS snapshot for the worker's
// child, giving the "worker state transition" debug logging concrete
// content. Failures (e.g. the process has already exited) are swallowed.
func (p *Process) sampleResourceUsage(pid int32) {
	proc, err := gopsprocess.NewProcess(pid)
	if err != nil {
		return
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return
	}
	p.debug("worker", "runID", p.runID, "state", "sample", "cpuPercent", cpuPercent, "rssBytes", mem.RSS)
}

// Poll implements Trigger: a non-blocking read of the upstream queue.
func (p *Process) Poll() {
	p.debug("poll()")
	select {
	case exitCode := <-p.upstream:
		p.debug("exit code", "exitCode", exitCode)
		p.handler(p, exitCode)
		p.ctx.remove(p)
	default:
	}
}

// Shutdown implements Trigger: sends TERMINATE and blocks until the worker
// confirms it has finished, guaranteeing no orphaned child processes after
// the supervisor exits.
func (p *Process) Shutdown() {
	p.downstream <- struct{}{}
	exitCode := <-p.upstream
	p.debug("shutdown observed exit", "exitCode", exitCode)
	p.cancel()
}
