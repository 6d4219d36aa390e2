package runtime

import (
	"context"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// signal interrupts the drain loop.
type signal struct {
	code    domain.ErrorCode
	message string
}

func (x *execution) interrupt(s signal) {
	select {
	case x.control <- s:
	case <-x.done:
	}
}

// watchCancel polls the cancel signal and watches the caller's context.
func (x *execution) watchCancel(ctx context.Context) error {
	ticker := time.NewTicker(x.r.opts.CancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-x.done:
			return nil
		case <-ctx.Done():
			x.interrupt(signal{code: domain.CodeWorkflowCancelled, message: "workflow was cancelled: " + ctx.Err().Error()})
			return nil
		case <-ticker.C:
			if x.req.Cancel != nil && x.req.Cancel.IsSet() {
				x.interrupt(signal{code: domain.CodeWorkflowCancelled, message: "workflow was cancelled"})
				return nil
			}
		}
	}
}

func (x *execution) watchTimeout(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-x.done:
	case <-timer.C:
		x.interrupt(signal{code: domain.CodeWorkflowTimeout, message: "workflow timed out after " + d.String()})
	}
	return nil
}
