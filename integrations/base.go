package integrations

import (
	"time"

	"github.com/cognitedata/bridge-carousel/internal"
	log "github.com/sirupsen/logrus"
)

// BaseIntegration is a base class for all integrations. Integrations are long running processes that internally run one or more processors (goroutines)
// All processors share that same logic but configured differently. StateTracker is used to track the state of all processors and to control them.
type BaseIntegration struct {
	ID           string
	IsRunning    bool
	StateTracker *internal.StateTracker
	Notifier     internal.Notifier
	StopTimeout  time.Duration
}

func NewIntegration(id string, notifier internal.Notifier) *BaseIntegration {
	return &BaseIntegration{ID: id,
		Notifier:     notifier,
		StateTracker: internal.NewStateTracker(),
		StopTimeout:  10 * time.Second,
	}
}

func (intgr *BaseIntegration) Stop() {
	intgr.IsRunning = false
}

// StopProcessor sets processor target state to STOPPED and waits until the processor exits.
// Returns false if the processor is still running after StopTimeout.
func (intgr *BaseIntegration) StopProcessor(procId string) bool {
	procState := intgr.StateTracker.GetProcessorState(procId)
	if procState.CurrentState == internal.ProcessorStateStopped || procState.CurrentState == internal.ProcessorStateShutdown || procState.CurrentState == internal.ProcessorStateNotFound {
		log.Debugf("Processor %s is already stopped or not found", procId)
		return true
	}
	log.Infof("Sending stop signal to processor %s ", procId)
	intgr.StateTracker.SetProcessorTargetState(procId, internal.ProcessorStateStopped)
	if intgr.StateTracker.WaitForProcessorTargetState(procId, intgr.StopTimeout) {
		log.Infof("Processor %s has been stopped", procId)
		return true
	}
	log.Errorf("Failed to stop processor %s. Previous instance is still running", procId)
	return false
}

// Notify sends a notification for the session to display clients.
func (intgr *BaseIntegration) Notify(sessionID, kind string, payload map[string]interface{}) {
	if intgr.Notifier == nil {
		return
	}
	intgr.Notifier.Notify(internal.Notification{ID: sessionID, Kind: kind, Payload: payload})
}
