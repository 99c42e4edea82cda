package bridge_cams_to_display

import (
	"context"
	"time"

	"github.com/cognitedata/bridge-carousel/internal"
)

type displayFrame struct {
	state  DisplayState
	camera Camera
}

// frame must be called with mux held.
func (s *Session) frame() displayFrame {
	st := s.state()
	if st != StateShowing {
		return displayFrame{state: st}
	}
	return displayFrame{state: st, camera: s.cameras[s.index]}
}

// advance moves to the next camera, wrapping around. Must be called with mux held.
func (s *Session) advance() {
	if s.state() != StateShowing {
		return
	}
	if s.index < len(s.cameras)-1 {
		s.index++
	} else {
		s.index = 0
	}
}

// tick returns the frame to display, advances the index and returns delay before the next tick.
func (s *Session) tick() (displayFrame, time.Duration) {
	s.mux.Lock()
	defer s.mux.Unlock()
	f := s.frame()
	s.advance()
	if s.ready {
		return f, s.config.UpdateDuration()
	}
	return f, s.config.RetryDuration()
}

func (s *Session) currentFrame() displayFrame {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.frame()
}

// rotate is the rotation loop run of a session.
func (intgr *BridgeCamsToDisplay) rotate(s *Session) internal.RecurringFunc {
	return func(ctx context.Context) time.Duration {
		f, delay := s.tick()
		intgr.emit(s, f)
		return delay
	}
}

// display re-emits the current selection without advancing.
func (intgr *BridgeCamsToDisplay) display(s *Session) {
	intgr.emit(s, s.currentFrame())
}

func (intgr *BridgeCamsToDisplay) emit(s *Session, f displayFrame) {
	switch f.state {
	case StateLoading:
		s.log.Debug("Still loading")
		intgr.Notify(s.ID(), internal.NotificationSetMessage, map[string]interface{}{"status": StateLoading.String()})
	case StateNoCams:
		s.log.Debug("No cameras found. skipping")
		intgr.Notify(s.ID(), internal.NotificationSetMessage, map[string]interface{}{"status": StateNoCams.String()})
	default:
		s.log.Debugf("Showing camera %s", f.camera.Nickname)
		intgr.Notify(s.ID(), internal.NotificationSetCamera, map[string]interface{}{"camera": f.camera})
	}
}
