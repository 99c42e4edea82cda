package bridge_cams_to_display

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	log "github.com/sirupsen/logrus"
)

// DisplayState is what a session currently shows on its display.
type DisplayState int

const (
	StateLoading DisplayState = iota
	StateNoCams
	StateShowing
)

func (s DisplayState) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateNoCams:
		return "NO_CAMS"
	case StateShowing:
		return "SHOWING"
	}
	return "UNKNOWN"
}

// Camera is a display ready camera record. Attributes are copied verbatim from the bridge.
type Camera struct {
	Nickname   string
	ImageURL   string
	VideoURL   string
	Attributes map[string]interface{}
}

// MarshalJSON flattens attributes next to image_url and video_url.
func (c Camera) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Attributes)+2)
	for k, v := range c.Attributes {
		out[k] = v
	}
	out["image_url"] = c.ImageURL
	out["video_url"] = c.VideoURL
	return json.Marshal(out)
}

// Session is the live state of one display instance.
// cameras, index and ready are guarded by mux, discovery replaces the list while rotation reads and advances the index.
type Session struct {
	config SessionConfig
	driver bridge.Driver
	log    *log.Entry

	mux     sync.Mutex
	cameras []Camera
	index   int
	ready   bool

	cancel context.CancelFunc
}

func newSession(config SessionConfig, driver bridge.Driver) *Session {
	return &Session{
		config:  config,
		driver:  driver,
		cameras: []Camera{},
		log:     log.WithFields(log.Fields{"session": config.ID, "name": config.Name}),
	}
}

func (s *Session) ID() string {
	return s.config.ID
}

func (s *Session) Config() SessionConfig {
	return s.config
}

// state must be called with mux held.
func (s *Session) state() DisplayState {
	if !s.ready {
		return StateLoading
	}
	if len(s.cameras) == 0 {
		return StateNoCams
	}
	return StateShowing
}

func (s *Session) State() DisplayState {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.state()
}

func (s *Session) Ready() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.ready
}

func (s *Session) Index() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.index
}

// Cameras returns a copy of the current camera list.
func (s *Session) Cameras() []Camera {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]Camera(nil), s.cameras...)
}

// SessionStatus is a point in time view of a session.
type SessionStatus struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	State       string   `json:"state"`
	Ready       bool     `json:"ready"`
	Index       int      `json:"index"`
	CameraCount int      `json:"camera_count"`
	Cameras     []string `json:"cameras"`
	Discovery   string   `json:"discovery"`
	Rotation    string   `json:"rotation"`
}

func (s *Session) status() SessionStatus {
	s.mux.Lock()
	defer s.mux.Unlock()
	names := make([]string, len(s.cameras))
	for i, c := range s.cameras {
		names[i] = c.Nickname
	}
	return SessionStatus{
		ID:          s.config.ID,
		Name:        s.config.Name,
		State:       s.state().String(),
		Ready:       s.ready,
		Index:       s.index,
		CameraCount: len(s.cameras),
		Cameras:     names,
	}
}
