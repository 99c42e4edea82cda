package bridge_cams_to_display

import (
	"context"
	"sync"
	"time"

	"github.com/cognitedata/bridge-carousel/connectors/proxy"
	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	"github.com/cognitedata/bridge-carousel/internal"
)

type notificationRecorder struct {
	mux   sync.Mutex
	items []internal.Notification
}

func (r *notificationRecorder) Notify(n internal.Notification) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.items = append(r.items, n)
}

func (r *notificationRecorder) all() []internal.Notification {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]internal.Notification(nil), r.items...)
}

func (r *notificationRecorder) kinds() []string {
	var kinds []string
	for _, n := range r.all() {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func (r *notificationRecorder) reset() {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.items = nil
}

// shown returns nicknames of SET_CAMERA notifications in order.
func (r *notificationRecorder) shown() []string {
	var names []string
	for _, n := range r.all() {
		if n.Kind == internal.NotificationSetCamera {
			names = append(names, n.Payload["camera"].(Camera).Nickname)
		}
	}
	return names
}

// statuses returns SET_MESSAGE statuses in order.
func (r *notificationRecorder) statuses() []string {
	var statuses []string
	for _, n := range r.all() {
		if n.Kind == internal.NotificationSetMessage {
			statuses = append(statuses, n.Payload["status"].(string))
		}
	}
	return statuses
}

type fakeDriver struct {
	mux     sync.Mutex
	cameras bridge.CameraList
	err     error
	calls   int
}

func (d *fakeDriver) ListCameras(ctx context.Context) (bridge.CameraList, error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.calls++
	return d.cameras, d.err
}

func (d *fakeDriver) set(cameras bridge.CameraList, err error) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.cameras = cameras
	d.err = err
}

func (d *fakeDriver) callCount() int {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.calls
}

func (d *fakeDriver) constructor() bridge.DriverConstructor {
	return func(address string, timeout time.Duration) bridge.Driver {
		return d
	}
}

type fakeRouter struct {
	mux         sync.Mutex
	installed   map[string]proxy.Rules
	uninstalled []string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{installed: map[string]proxy.Rules{}}
}

func (r *fakeRouter) Install(sessionID string, rules proxy.Rules) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.installed[sessionID] = rules
	return nil
}

func (r *fakeRouter) Uninstall(sessionID string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	delete(r.installed, sessionID)
	r.uninstalled = append(r.uninstalled, sessionID)
}

func (r *fakeRouter) rules(sessionID string) (proxy.Rules, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	rules, ok := r.installed[sessionID]
	return rules, ok
}

func entry(key, nickname, img, nameURI string) bridge.CameraEntry {
	return bridge.CameraEntry{
		Key:    key,
		Record: bridge.CameraRecord{ImgURL: img, NameURI: nameURI, Nickname: nickname},
		Raw: map[string]interface{}{
			"nickname":  nickname,
			"img_url":   img,
			"name_uri":  nameURI,
			"connected": true,
			"enabled":   true,
		},
	}
}

func camerasNamed(names ...string) []Camera {
	cameras := make([]Camera, len(names))
	for i, n := range names {
		cameras[i] = Camera{Nickname: n}
	}
	return cameras
}

func nicknames(cameras []Camera) []string {
	names := make([]string, len(cameras))
	for i, c := range cameras {
		names[i] = c.Nickname
	}
	return names
}

func testSession(config SessionConfig, driver bridge.Driver) *Session {
	if config.ID == "" {
		config.ID = "display-1"
	}
	if config.TargetHost == "" {
		config.TargetHost = "http://bridge.local"
	}
	if err := config.Normalize(Defaults{ModuleName: "MMM-WyzeBridge", ListenPort: "8080"}); err != nil {
		panic(err)
	}
	return newSession(config, driver)
}
