package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCameraListKeepsUpstreamOrder(t *testing.T) {
	body := []byte(`{"total": 3, "cameras": {
		"zeta": {"nickname": "Z", "img_url": "img/zeta.jpg", "name_uri": "zeta", "connected": true, "status": "connected"},
		"alpha": {"nickname": "A", "img_url": "img/alpha.jpg", "name_uri": "alpha", "enabled": false},
		"mid": {"nickname": "M", "img_url": "img/mid.jpg", "name_uri": "mid", "extra": {"nested": [1, 2]}}
	}}`)

	cameras, err := DecodeCameraList(body)
	require.NoError(t, err)
	require.Len(t, cameras, 3)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{cameras[0].Key, cameras[1].Key, cameras[2].Key})
	assert.Equal(t, CameraRecord{ImgURL: "img/zeta.jpg", NameURI: "zeta", Nickname: "Z"}, cameras[0].Record)
	assert.Equal(t, true, cameras[0].Raw["connected"])
	assert.Equal(t, false, cameras[1].Raw["enabled"])
}

func TestDecodeCameraListShapeMismatch(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"not json", `<html>bad gateway</html>`},
		{"array", `[1,2,3]`},
		{"no cameras field", `{"total": 0}`},
		{"cameras is a list", `{"cameras": []}`},
		{"camera is a string", `{"cameras": {"a": "front"}}`},
		{"missing nickname", `{"cameras": {"a": {"img_url": "a.jpg", "name_uri": "a"}}}`},
		{"null img url", `{"cameras": {"a": {"img_url": null, "name_uri": "a", "nickname": "A"}}}`},
		{"numeric nickname", `{"cameras": {"a": {"img_url": "a.jpg", "name_uri": "a", "nickname": 5}}}`},
		{"truncated", `{"cameras": {"a": {"img_url": "a.jpg"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cameras, err := DecodeCameraList([]byte(tc.body))
			assert.True(t, errors.Is(err, ErrShapeMismatch), "unexpected error %v", err)
			assert.Empty(t, cameras)
		})
	}
}

func TestDecodeCameraListEmptyCameras(t *testing.T) {
	cameras, err := DecodeCameraList([]byte(`{"cameras": {}}`))
	require.NoError(t, err)
	assert.Empty(t, cameras)
}

func TestListCameras(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/MMM-WyzeBridge/proxy/api", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cameras": {"camA": {"nickname": "Front", "img_url": "x.jpg", "name_uri": "front"}}}`))
	}))
	defer upstream.Close()

	drv := NewWyzeBridgeDriver(upstream.URL+"/MMM-WyzeBridge/proxy/api", time.Second)
	cameras, err := drv.ListCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, cameras, 1)
	assert.Equal(t, "camA", cameras[0].Key)
	assert.Equal(t, "Front", cameras[0].Record.Nickname)
}

func TestListCamerasMalformedBodyIsEmpty(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "starting"}`))
	}))
	defer upstream.Close()

	cameras, err := NewWyzeBridgeDriver(upstream.URL, time.Second).ListCameras(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cameras)
}

func TestListCamerasHttpError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	_, err := NewWyzeBridgeDriver(upstream.URL, time.Second).ListCameras(context.Background())
	assert.Error(t, err)
}

func TestListCamerasUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	address := upstream.URL
	upstream.Close()

	_, err := NewWyzeBridgeDriver(address, time.Second).ListCameras(context.Background())
	assert.Error(t, err)
}

func TestSelfProxyAddress(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/MMM-WyzeBridge/proxy/api", SelfProxyAddress("http:", "", "8080", "MMM-WyzeBridge"))
	assert.Equal(t, "https://localhost:443/cams/proxy/api", SelfProxyAddress("https", "localhost", "443", "cams"))
	assert.Equal(t, "http://localhost:80/x/proxy/api", SelfProxyAddress("", "", "80", "x"))
	assert.Equal(t, "http://192.168.1.10:8080/x/proxy/api", SelfProxyAddress("http:", "192.168.1.10", "8080", "x"))
	assert.Equal(t, "http://[fe80::1]:8080/x/proxy/api", SelfProxyAddress("http:", "fe80::1", "8080", "x"))
}
