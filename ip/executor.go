package ip

import (
	"context"
	"time"
)

// PollInterval is the granularity at which an attempt is checked for completion.
const PollInterval = 100 * time.Millisecond

type outcome struct {
	addr Address
	err  error
}

// Execute runs one adapter attempt in its own goroutine and waits for it for at most
// ceil(timeout/PollInterval) polls. An attempt that is still running when the budget is
// exhausted is abandoned: its context is cancelled and its result, if any, is dropped.
func Execute(ctx context.Context, a Adapter, d Descriptor, opts Options) (Address, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// one slot, so a late sender never blocks
	result := make(chan outcome, 1)
	go func() {
		addr, err := a.Attempt(attemptCtx, d, opts)
		result <- outcome{addr: addr, err: err}
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	budget := polls(opts.Timeout)
	for n := 0; ; {
		select {
		case o := <-result:
			return o.addr, o.err
		case <-ctx.Done():
			return Address{}, ctx.Err()
		case <-ticker.C:
			n++
			if n < budget {
				continue
			}
			// the attempt may have finished on the last tick
			select {
			case o := <-result:
				return o.addr, o.err
			default:
			}
			return Address{}, &TimeoutError{Endpoint: d.Endpoint, Timeout: opts.Timeout}
		}
	}
}

// transportDeadline bounds the network calls of an attempt one poll past the budget of Execute,
// so an unanswered attempt is always reported as a TimeoutError.
func transportDeadline(timeout time.Duration) time.Duration {
	return time.Duration(polls(timeout)+1) * PollInterval
}

func polls(timeout time.Duration) int {
	n := int((timeout + PollInterval - 1) / PollInterval)
	if n < 1 {
		return 1
	}
	return n
}
