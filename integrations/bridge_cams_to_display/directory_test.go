package bridge_cams_to_display

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCamerasShowAll(t *testing.T) {
	list := bridge.CameraList{
		entry("camA", "Front", "x.jpg", "front"),
		entry("camB", "Back", "y.jpg", "back"),
	}
	cameras := BuildCameras(list, ShowAll(), FilterByKey)

	require.Len(t, cameras, 2)
	assert.Equal(t, []string{"Back", "Front"}, nicknames(cameras))
	assert.Equal(t, "/proxy/y.jpg", cameras[0].ImageURL)
	assert.Equal(t, "/stream/back/stream.m3u8", cameras[0].VideoURL)
	assert.Equal(t, "back", cameras[0].Attributes["name_uri"])
	assert.Equal(t, true, cameras[0].Attributes["connected"])
}

func TestBuildCamerasFilterByKey(t *testing.T) {
	list := bridge.CameraList{
		entry("cam1", "Garage", "g.jpg", "garage"),
		entry("cam2", "cam1", "c.jpg", "cam1-nick"),
	}
	cameras := BuildCameras(list, NewFilter("cam1"), FilterByKey)

	// only the upstream key is matched, the nickname "cam1" of cam2 is irrelevant
	require.Len(t, cameras, 1)
	assert.Equal(t, "Garage", cameras[0].Nickname)
}

func TestBuildCamerasFilterByNickname(t *testing.T) {
	list := bridge.CameraList{
		entry("cam1", "Garage", "g.jpg", "garage"),
		entry("cam2", "Porch", "p.jpg", "porch"),
	}
	cameras := BuildCameras(list, NewFilter("Porch"), FilterByNickname)

	require.Len(t, cameras, 1)
	assert.Equal(t, "Porch", cameras[0].Nickname)
}

func TestBuildCamerasEmpty(t *testing.T) {
	cameras := BuildCameras(nil, ShowAll(), FilterByKey)
	assert.NotNil(t, cameras)
	assert.Empty(t, cameras)
}

func TestSortCamerasIsStableAndIdempotent(t *testing.T) {
	cameras := []Camera{
		{Nickname: "b", ImageURL: "1"},
		{Nickname: "B", ImageURL: "2"},
		{Nickname: "a", ImageURL: "3"},
		{Nickname: "b", ImageURL: "4"},
		{Nickname: "a", ImageURL: "5"},
	}
	SortCameras(cameras)
	first := append([]Camera(nil), cameras...)

	assert.Equal(t, []string{"B", "a", "a", "b", "b"}, nicknames(cameras))
	// ties keep their relative order
	assert.Equal(t, []string{"2", "3", "5", "1", "4"}, []string{cameras[0].ImageURL, cameras[1].ImageURL, cameras[2].ImageURL, cameras[3].ImageURL, cameras[4].ImageURL})

	SortCameras(cameras)
	assert.Equal(t, first, cameras)
}

func TestDiffNicknames(t *testing.T) {
	diff := DiffNicknames(camerasNamed("A", "B", "C"), camerasNamed("B", "C", "D"))
	assert.Equal(t, []string{"D"}, diff.Added)
	assert.Equal(t, []string{"A"}, diff.Removed)
	assert.True(t, diff.Changed())
	assert.Equal(t, 3, diff.Count)

	diff = DiffNicknames(camerasNamed("A", "B"), camerasNamed("B", "A"))
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.False(t, diff.Changed())

	diff = DiffNicknames(nil, camerasNamed("A", "A"))
	assert.Equal(t, []string{"A"}, diff.Added)
}

func TestApplyCamerasReadyBeforeDisplay(t *testing.T) {
	notifier := &notificationRecorder{}
	intgr := NewBridgeCamsToDisplay(notifier, newFakeRouter(), Defaults{ModuleName: "MMM-WyzeBridge"})
	driver := &fakeDriver{}
	driver.set(bridge.CameraList{entry("camA", "Front", "x.jpg", "front")}, nil)
	s := testSession(SessionConfig{}, driver)

	intgr.discover(s)(context.Background())
	// the first change displays the camera, no LOADING frame is sent in between
	assert.Empty(t, notifier.statuses())
	assert.Equal(t, []string{"Front"}, notifier.shown())
}

func TestApplyCamerasResetsIndex(t *testing.T) {
	s := testSession(SessionConfig{}, &fakeDriver{})
	s.applyCameras(camerasNamed("A", "B", "C"))
	s.index = 2

	s.applyCameras(camerasNamed("A", "B", "C", "D"))
	assert.Equal(t, 2, s.Index())

	s.applyCameras(camerasNamed("A", "B"))
	assert.Equal(t, 0, s.Index())

	s.index = 1
	s.applyCameras(nil)
	assert.Equal(t, 0, s.Index())
	assert.Equal(t, StateNoCams, s.State())
}

func TestCameraMarshalJSONIsFlat(t *testing.T) {
	list := bridge.CameraList{entry("camA", "Front", "x.jpg", "front")}
	cameras := BuildCameras(list, ShowAll(), FilterByKey)

	body, err := json.Marshal(cameras[0])
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "/proxy/x.jpg", decoded["image_url"])
	assert.Equal(t, "/stream/front/stream.m3u8", decoded["video_url"])
	assert.Equal(t, "Front", decoded["nickname"])
	assert.Equal(t, true, decoded["connected"])
	// attributes missing upstream are left out
	assert.NotContains(t, decoded, "firmware_ver")
	assert.NotContains(t, decoded, "status")
	assert.NotContains(t, decoded, "img_url")
}
