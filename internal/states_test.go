package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryStartAllowsSingleInstance(t *testing.T) {
	tracker := NewStateTracker()
	assert.True(t, tracker.TryStart("discovery/d1"))
	assert.False(t, tracker.TryStart("discovery/d1"))
	assert.True(t, tracker.TryStart("rotation/d1"))

	st := tracker.GetProcessorState("discovery/d1")
	assert.Equal(t, ProcessorStateStarting, st.CurrentState)
	assert.Equal(t, ProcessorStateRunning, st.TargetState)
	assert.True(t, st.IsActive())

	tracker.SetProcessorCurrentState("discovery/d1", ProcessorStateStopped)
	assert.True(t, tracker.TryStart("discovery/d1"))
}

func TestForget(t *testing.T) {
	tracker := NewStateTracker()
	tracker.TryStart("a")
	tracker.TryStart("b")
	tracker.Forget("a")

	assert.Equal(t, ProcessorStateNotFound, tracker.GetProcessorState("a").CurrentState)
	assert.Equal(t, ProcessorStateStarting, tracker.GetProcessorState("b").CurrentState)
	tracker.Forget("missing")
}

func TestWaitForProcessorTargetState(t *testing.T) {
	tracker := NewStateTracker()
	tracker.pollInterval = time.Millisecond
	tracker.TryStart("p")
	tracker.SetProcessorCurrentState("p", ProcessorStateRunning)
	tracker.SetProcessorTargetState("p", ProcessorStateStopped)

	assert.False(t, tracker.WaitForProcessorTargetState("p", 5*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		tracker.SetProcessorCurrentState("p", ProcessorStateStopped)
	}()
	assert.True(t, tracker.WaitForProcessorTargetState("p", time.Second))
}

func TestGetProcessorStateReturnsCopy(t *testing.T) {
	tracker := NewStateTracker()
	tracker.TryStart("p")
	st := tracker.GetProcessorState("p")
	st.CurrentState = ProcessorStateShutdown
	assert.Equal(t, ProcessorStateStarting, tracker.GetProcessorState("p").CurrentState)
}
