package bridge_cams_to_display

import (
	"context"
	"sort"
	"time"

	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	"github.com/cognitedata/bridge-carousel/internal"
)

// passthroughKeys are upstream attributes copied into camera records when present.
var passthroughKeys = []string{
	"connected",
	"enabled",
	"firmware_ver",
	"name_uri",
	"nickname",
	"product_model",
	"status",
}

// CameraDiff lists nicknames added and removed between two discovery cycles.
type CameraDiff struct {
	Added   []string
	Removed []string
	Count   int
}

func (d CameraDiff) Changed() bool {
	return len(d.Added)+len(d.Removed) > 0
}

// BuildCameras filters upstream cameras and converts them into display records sorted by nickname.
// filterBy selects whether filter names are matched against the upstream key or the nickname.
func BuildCameras(list bridge.CameraList, filter Filter, filterBy string) []Camera {
	cameras := []Camera{}
	for _, entry := range list {
		name := entry.Key
		if filterBy == FilterByNickname {
			name = entry.Record.Nickname
		}
		if !filter.Includes(name) {
			continue
		}
		attributes := make(map[string]interface{}, len(passthroughKeys))
		for _, k := range passthroughKeys {
			if v, ok := entry.Raw[k]; ok {
				attributes[k] = v
			}
		}
		cameras = append(cameras, Camera{
			Nickname:   entry.Record.Nickname,
			ImageURL:   "/proxy/" + entry.Record.ImgURL,
			VideoURL:   "/stream/" + entry.Record.NameURI + "/stream.m3u8",
			Attributes: attributes,
		})
	}
	SortCameras(cameras)
	return cameras
}

// SortCameras sorts ascending by nickname, cameras with equal nicknames keep their order.
func SortCameras(cameras []Camera) {
	sort.SliceStable(cameras, func(i, j int) bool {
		return cameras[i].Nickname < cameras[j].Nickname
	})
}

// DiffNicknames compares two camera lists as sets of nicknames.
func DiffNicknames(previous, current []Camera) CameraDiff {
	return CameraDiff{
		Added:   nicknamesMissingIn(current, previous),
		Removed: nicknamesMissingIn(previous, current),
		Count:   len(current),
	}
}

// nicknamesMissingIn returns unique nicknames of from that are not present in other.
func nicknamesMissingIn(from, other []Camera) []string {
	known := make(map[string]struct{}, len(other))
	for _, c := range other {
		known[c.Nickname] = struct{}{}
	}
	var missing []string
	for _, c := range from {
		if _, ok := known[c.Nickname]; ok {
			continue
		}
		known[c.Nickname] = struct{}{}
		missing = append(missing, c.Nickname)
	}
	return missing
}

// applyCameras swaps the camera list and marks the session ready.
// The index is reset when it no longer points into the new list.
func (s *Session) applyCameras(cameras []Camera) CameraDiff {
	if cameras == nil {
		cameras = []Camera{}
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	diff := DiffNicknames(s.cameras, cameras)
	s.cameras = cameras
	if s.index > len(s.cameras)-1 {
		s.index = 0
	}
	// ready is set before the change triggered display so that display shows a camera, not LOADING
	s.ready = true
	return diff
}

// discover is the discovery cycle of a session: fetch, update state, notify.
func (intgr *BridgeCamsToDisplay) discover(s *Session) internal.RecurringFunc {
	return func(ctx context.Context) time.Duration {
		s.log.Debugf("Requesting cameras... %s", s.config.ApiAddress())
		list, err := s.driver.ListCameras(ctx)
		if ctx.Err() != nil {
			return 0
		}

		cameras := []Camera{}
		if err != nil {
			s.log.Errorf("Failed to request cameras. Error : %s", err.Error())
		} else {
			cameras = BuildCameras(list, s.config.Filter, s.config.FilterBy)
			s.log.Debugf("%d of %d cameras passed filter", len(cameras), len(list))
		}

		diff := s.applyCameras(cameras)
		intgr.reportCameraChanges(s, diff)
		s.log.Debug("Request cameras finished")
		return s.config.RetryDuration()
	}
}

func (intgr *BridgeCamsToDisplay) reportCameraChanges(s *Session, diff CameraDiff) {
	if diff.Changed() {
		s.log.Info("Changes received in cameras")
		for _, name := range diff.Added {
			s.log.Infof("%s camera detected", name)
		}
		for _, name := range diff.Removed {
			s.log.Infof("%s camera removed", name)
		}
		intgr.display(s)
	}
	intgr.Notify(s.ID(), internal.NotificationReadyState, map[string]interface{}{"value": true})
	intgr.Notify(s.ID(), internal.NotificationCamerasUpdated, map[string]interface{}{"camera_count": diff.Count})
}
