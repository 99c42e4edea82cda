package internal

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrAlreadyRunning = errors.New("processor is already running")

// RecurringFunc executes a single run of a recurring task and returns the delay before the next run.
type RecurringFunc func(ctx context.Context) time.Duration

// StartRecurring starts fn in its own goroutine and keeps running it until ctx is cancelled
// or the processor target state is set to STOPPED.
// Only one instance per procId can run at a time, a second call returns ErrAlreadyRunning.
func StartRecurring(ctx context.Context, tracker *StateTracker, procId string, fn RecurringFunc) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !tracker.TryStart(procId) {
		return errors.Wrap(ErrAlreadyRunning, procId)
	}
	go runRecurringLoop(ctx, tracker, procId, fn)
	return nil
}

func runRecurringLoop(ctx context.Context, tracker *StateTracker, procId string, fn RecurringFunc) {
	defer tracker.SetProcessorCurrentState(procId, ProcessorStateStopped)
	tracker.SetProcessorCurrentState(procId, ProcessorStateRunning)
	log.Debugf("Processor %s started", procId)

	for {
		delay := runOnce(ctx, procId, fn)
		if ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
		if tracker.GetProcessorState(procId).TargetState == ProcessorStateStopped {
			break
		}
	}
	tracker.SetProcessorTargetState(procId, ProcessorStateStopped)
	log.Debugf("Processor %s exited main loop", procId)
}

// runOnce executes fn and recovers from panics, a crashed run is retried after one second.
func runOnce(ctx context.Context, procId string, fn RecurringFunc) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			log.Errorf("Processor %s run crashed with error : %v %s", procId, r, stack)
			delay = time.Second
		}
	}()
	return fn(ctx)
}
