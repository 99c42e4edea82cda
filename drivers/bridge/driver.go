package bridge

import (
	"context"
	"time"
)

// CameraRecord holds fields of an upstream camera required to build display urls.
type CameraRecord struct {
	ImgURL   string `mapstructure:"img_url"`
	NameURI  string `mapstructure:"name_uri"`
	Nickname string `mapstructure:"nickname"`
}

// CameraEntry is a single upstream camera. Raw keeps every upstream attribute as decoded.
type CameraEntry struct {
	Key    string
	Record CameraRecord
	Raw    map[string]interface{}
}

// CameraList keeps upstream cameras in the order they were received.
type CameraList []CameraEntry

type DriverConstructor func(address string, timeout time.Duration) Driver

type Driver interface {
	// ListCameras fetches the current camera list. A response of unexpected shape
	// is reported as an empty list, only transport and http status failures return errors.
	ListCameras(ctx context.Context) (CameraList, error)
}
