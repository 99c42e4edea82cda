package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrShapeMismatch = errors.New("unexpected camera list shape")

var requiredFields = []string{"img_url", "name_uri", "nickname"}

// WyzeBridgeDriver reads the camera list from the bridge api endpoint.
type WyzeBridgeDriver struct {
	httpClient http.Client
	address    string
}

func NewWyzeBridgeDriver(address string, timeout time.Duration) Driver {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := http.Client{
		Timeout: timeout,
	}
	return &WyzeBridgeDriver{httpClient: httpClient, address: address}
}

// SelfProxyAddress returns url of the bridge api as seen through the local proxy rule,
// for example http://localhost:8080/MMM-WyzeBridge/proxy/api. An empty host means localhost.
func SelfProxyAddress(protocol, host, port, name string) string {
	if protocol == "" {
		protocol = "http:"
	}
	if !strings.HasSuffix(protocol, ":") {
		protocol += ":"
	}
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s//%s/%s/proxy/api", protocol, net.JoinHostPort(host, port), name)
}

func (drv *WyzeBridgeDriver) Address() string {
	return drv.address
}

func (drv *WyzeBridgeDriver) ListCameras(ctx context.Context) (CameraList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, drv.address, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := drv.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("bridge api returned error code %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cameras, err := DecodeCameraList(body)
	if err != nil {
		log.Warnf("Bridge api response ignored, treating as empty camera list. Error : %s", err.Error())
		return CameraList{}, nil
	}
	return cameras, nil
}

// DecodeCameraList parses {"cameras": {"<key>": {...}, ...}} keeping upstream key order.
// Any shape mismatch returns ErrShapeMismatch and no cameras.
func DecodeCameraList(body []byte) (CameraList, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var cameras CameraList
	found := false
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if key != "cameras" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, errors.Wrap(ErrShapeMismatch, err.Error())
			}
			continue
		}
		cameras, err = decodeCameras(dec)
		if err != nil {
			return nil, err
		}
		found = true
	}
	if !found {
		return nil, errors.Wrap(ErrShapeMismatch, "cameras field is missing")
	}
	return cameras, nil
}

func decodeCameras(dec *json.Decoder) (CameraList, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, errors.Wrap(err, "cameras")
	}
	cameras := CameraList{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, errors.Wrap(ErrShapeMismatch, err.Error())
		}
		entry, err := decodeEntry(key, value)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, entry)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return cameras, nil
}

func decodeEntry(key string, value interface{}) (CameraEntry, error) {
	raw, ok := value.(map[string]interface{})
	if !ok {
		return CameraEntry{}, errors.Wrapf(ErrShapeMismatch, "camera %s is not an object", key)
	}
	for _, field := range requiredFields {
		if raw[field] == nil {
			return CameraEntry{}, errors.Wrapf(ErrShapeMismatch, "camera %s has no %s", key, field)
		}
	}
	var record CameraRecord
	if err := mapstructure.Decode(raw, &record); err != nil {
		return CameraEntry{}, errors.Wrapf(ErrShapeMismatch, "camera %s: %s", key, err.Error())
	}
	return CameraEntry{Key: key, Record: record, Raw: raw}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(ErrShapeMismatch, err.Error())
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Wrapf(ErrShapeMismatch, "expected %s got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", errors.Wrap(ErrShapeMismatch, err.Error())
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.Wrapf(ErrShapeMismatch, "unexpected token %v", tok)
	}
	return key, nil
}
