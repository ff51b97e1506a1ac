package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tack-sh/tack/remotetask"
)

// RemoteTaskHandler is the callable a RemoteTask trigger invokes exactly
// once, when the remote task reaches a terminal status: handler(self,
// terminal_status) in SPEC_FULL.md §3.
type RemoteTaskHandler func(r *RemoteTask, status remotetask.Status)

// RemoteTask resolves its auth token at construction, then spawns a worker
// that repeatedly queries remotetask.API for the task's status until it is
// SUCCEEDED or FAILED (SPEC_FULL.md §4.6). The "globus" kind name reflects
// the original's intended backend: the Globus bulk-transfer service.
type RemoteTask struct {
	Base
	user, taskID string
	handler      RemoteTaskHandler
	statusCh     chan remotetask.Status
	cancel       context.CancelFunc
	api          remotetask.API
}

func newRemoteTaskFromOptions(ctx *Context, opts Options) (Trigger, error) {
	base, err := newBase(ctx, "globus", opts)
	if err != nil {
		return nil, err
	}

	user, err := key[string]("globus", opts, "user")
	if err != nil {
		return nil, err
	}

	tokenOpt, err := key[string]("globus", opts, "token")
	if err != nil {
		return nil, err
	}

	taskID, err := key[string]("globus", opts, "task")
	if err != nil {
		return nil, err
	}

	handler, err := key[RemoteTaskHandler]("globus", opts, "handler")
	if err != nil {
		return nil, err
	}

	token := tokenOpt
	if tokenOpt == "ENV" {
		v, ok := os.LookupEnv("TOKEN")
		if !ok {
			return nil, fmt.Errorf("globus trigger %q: TOKEN environment variable is not set", base.Name())
		}
		token = v
	}

	api, _ := opts["api"].(remotetask.API)
	if api == nil {
		if endpoint, ok := opts["endpoint"].(string); ok && endpoint != "" {
			api = remotetask.NewHTTPClient(endpoint)
		} else {
			api = remotetask.NewMemory()
		}
	}

	workCtx, cancel := context.WithCancel(context.Background())

	r := &RemoteTask{
		Base:     base,
		user:     user,
		taskID:   taskID,
		handler:  handler,
		statusCh: make(chan remotetask.Status, 1),
		cancel:   cancel,
		api:      api,
	}
	r.info("new globus trigger", "user", user, "task", taskID)

	go r.run(workCtx, token)

	return r, nil
}

const (
	remoteTaskInitialBackoff     = 2 * time.Second
	remoteTaskMaxBackoff         = 30 * time.Second
	remoteTaskMaxConsecutiveErrs = 10
)

// run is the background worker: it polls api.Query, backing off between
// non-terminal responses, and reports a bounded number of consecutive
// transport errors as a terminal FAILED (SPEC_FULL.md §7).
func (r *RemoteTask) run(ctx context.Context, token string) {
	backoff := remoteTaskInitialBackoff
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		status, err := r.api.Query(ctx, r.user, token, r.taskID)
		switch {
		case err != nil:
			consecutiveErrors++
			r.debug("worker", "state", "transport error", "error", err, "attempt", consecutiveErrors)
			if consecutiveErrors >= remoteTaskMaxConsecutiveErrs {
				r.statusCh <- remotetask.StatusFailed
				return
			}
		case status.IsTerminal():
			r.debug("worker", "state", "terminal", "status", status)
			r.statusCh <- status
			return
		default:
			consecutiveErrors = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < remoteTaskMaxBackoff {
			backoff *= 2
			if backoff > remoteTaskMaxBackoff {
				backoff = remoteTaskMaxBackoff
			}
		}
	}
}

// Poll implements Trigger: a non-blocking read of the status queue.
func (r *RemoteTask) Poll() {
	r.debug("poll()")
	select {
	case status := <-r.statusCh:
		r.debug("terminal status", "status", status)
		r.handler(r, status)
		r.ctx.remove(r)
	default:
	}
}

// Shutdown implements Trigger. It cancels the worker's context and does not
// wait for it: the worker returns at its next context check (before a query
// or during its backoff sleep), and an HTTPClient-backed query already in
// flight is aborted (SPEC_FULL.md §4.6).
func (r *RemoteTask) Shutdown() {
	r.cancel()
}
