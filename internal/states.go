package internal

import (
	"sync"
	"time"
)

const (
	ProcessorStateRunning  = "RUNNING"
	ProcessorStateStarting = "STARTING"
	ProcessorStateShutdown = "SHUTDOWN"
	ProcessorStateStopped  = "STOPPED"
	ProcessorStateNotFound = "NOT_FOUND"
)

type ProcessorState struct {
	ID           string
	CurrentState string
	TargetState  string
}

// IsActive reports whether the processor is starting or running.
func (st ProcessorState) IsActive() bool {
	return st.CurrentState == ProcessorStateStarting || st.CurrentState == ProcessorStateRunning
}

// StateTracker keep track of current and target states for all session loops.
// Loop IDs are composite strings such as "discovery/<session id>".
type StateTracker struct {
	procStates   []ProcessorState
	mux          *sync.RWMutex
	pollInterval time.Duration
}

func NewStateTracker() *StateTracker {
	return &StateTracker{mux: &sync.RWMutex{}, pollInterval: 50 * time.Millisecond}
}

// TryStart atomically moves the processor into STARTING with target RUNNING.
// It returns false if another instance of the processor is already active.
func (intgr *StateTracker) TryStart(procId string) bool {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	st := intgr.getProcessorState(procId)
	if st.CurrentState == ProcessorStateNotFound {
		intgr.procStates = append(intgr.procStates, ProcessorState{ID: procId, CurrentState: ProcessorStateStarting, TargetState: ProcessorStateRunning})
		return true
	}
	if st.IsActive() {
		return false
	}
	st.CurrentState = ProcessorStateStarting
	st.TargetState = ProcessorStateRunning
	return true
}

func (intgr *StateTracker) SetProcessorTargetState(procId string, state string) {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	st := intgr.getProcessorState(procId)
	if st.CurrentState == ProcessorStateNotFound {
		intgr.procStates = append(intgr.procStates, ProcessorState{ID: procId, TargetState: state})
	} else {
		st.TargetState = state
	}
}

func (intgr *StateTracker) SetProcessorCurrentState(procId string, state string) {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	st := intgr.getProcessorState(procId)
	if st.CurrentState == ProcessorStateNotFound {
		intgr.procStates = append(intgr.procStates, ProcessorState{ID: procId, CurrentState: state})
	} else {
		st.CurrentState = state
	}
}

// Forget removes processor state, the processor must be stopped.
func (intgr *StateTracker) Forget(procId string) {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	for i := range intgr.procStates {
		if intgr.procStates[i].ID == procId {
			intgr.procStates = append(intgr.procStates[:i], intgr.procStates[i+1:]...)
			return
		}
	}
}

// getProcessorState returns process state , the method is for internal use only
func (intgr *StateTracker) getProcessorState(procId string) *ProcessorState {
	for i := range intgr.procStates {
		if intgr.procStates[i].ID == procId {
			return &intgr.procStates[i]
		}
	}
	return &ProcessorState{ID: procId, CurrentState: ProcessorStateNotFound, TargetState: ProcessorStateNotFound}
}

// GetProcessorState public version of getProcessorState. Returns a copy.
func (intgr *StateTracker) GetProcessorState(procId string) ProcessorState {
	intgr.mux.RLock()
	defer intgr.mux.RUnlock()
	return *intgr.getProcessorState(procId)
}

// WaitForProcessorTargetState blocks execution untill processor reaches target or wait operation times out .
func (intgr *StateTracker) WaitForProcessorTargetState(procId string, timeout time.Duration) bool {
	endTime := time.Now().Add(timeout)
	for {
		st := intgr.GetProcessorState(procId)
		if st.CurrentState == st.TargetState {
			return true
		}
		if time.Now().After(endTime) {
			return false
		}
		time.Sleep(intgr.pollInterval)
	}
}
