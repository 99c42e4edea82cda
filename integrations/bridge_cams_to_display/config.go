package bridge_cams_to_display

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cognitedata/bridge-carousel/connectors/proxy"
	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	"github.com/cognitedata/bridge-carousel/internal"
	"github.com/pkg/errors"
)

const (
	DefaultUpdateInterval = 30 * time.Second
	DefaultRetryDelay     = 5 * time.Second

	FilterByKey      = "key"
	FilterByNickname = "nickname"
)

// Filter selects cameras to show. The zero value shows all cameras.
type Filter struct {
	names []string
}

func ShowAll() Filter {
	return Filter{}
}

func NewFilter(names ...string) Filter {
	f := Filter{}
	for _, name := range names {
		if name != "" && !f.contains(name) {
			f.names = append(f.names, name)
		}
	}
	return f
}

func (f Filter) IsShowAll() bool {
	return len(f.names) == 0
}

func (f Filter) Names() []string {
	return append([]string(nil), f.names...)
}

// Includes reports whether a camera identified by name passes the filter.
func (f Filter) Includes(name string) bool {
	return f.IsShowAll() || f.contains(name)
}

func (f Filter) contains(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts 0, false, null, "" or [] as show all, a string as a single name
// and an array of strings as a list of names.
func (f *Filter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false", "0", `""`, "[]":
		*f = ShowAll()
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = NewFilter(single)
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return errors.Wrapf(internal.ErrInvalidConfig, "filter must be 0 or a list of camera names, got %s", string(data))
	}
	*f = NewFilter(names...)
	return nil
}

func (f Filter) MarshalJSON() ([]byte, error) {
	if f.IsShowAll() {
		return []byte("0"), nil
	}
	return json.Marshal(f.names)
}

func (f Filter) IsEqual(other Filter) bool {
	a, b := f.Names(), other.Names()
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PortValue is a tcp port that can be configured as json number or string.
type PortValue string

func (p *PortValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*p = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*p = PortValue(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrapf(internal.ErrInvalidConfig, "invalid port %s", string(data))
	}
	*p = PortValue(strings.TrimSpace(s))
	return nil
}

func (p PortValue) String() string {
	return string(p)
}

func (p PortValue) Validate() error {
	if p == "" {
		return nil
	}
	n, err := strconv.Atoi(string(p))
	if err != nil || n < 1 || n > 65535 {
		return errors.Wrapf(internal.ErrInvalidConfig, "invalid port %q", string(p))
	}
	return nil
}

// SessionConfig is the SET_CONFIG payload sent by a display instance.
// Intervals are in milliseconds.
type SessionConfig struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	TargetHost     string    `json:"targetHost"`
	TargetPort     PortValue `json:"targetPort"`
	StreamPort     PortValue `json:"streamPort,omitempty"`
	Filter         Filter    `json:"filter"`
	FilterBy       string    `json:"filterBy,omitempty"`
	UpdateInterval int64     `json:"updateInterval"`
	RetryDelay     int64     `json:"retryDelay"`
	Protocol       string    `json:"__protocol,omitempty"`
	Port           PortValue `json:"__port,omitempty"`

	selfHost string
}

// Defaults are process wide values applied to sessions that do not set them.
type Defaults struct {
	ModuleName string
	// ListenHost is dialed for self proxying, empty means localhost.
	ListenHost     string
	ListenPort     string
	RequestTimeout time.Duration
}

// Normalize validates the configuration and fills in defaults.
func (c *SessionConfig) Normalize(defaults Defaults) error {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return errors.Wrap(internal.ErrInvalidConfig, "session id is empty")
	}
	if strings.TrimSpace(c.TargetHost) == "" {
		return errors.Wrapf(internal.ErrInvalidConfig, "session %s has no targetHost", c.ID)
	}
	if c.Name == "" {
		c.Name = defaults.ModuleName
	}
	if c.Name == "" || strings.Contains(c.Name, "/") {
		return errors.Wrapf(internal.ErrInvalidConfig, "session %s has invalid proxy name %q", c.ID, c.Name)
	}
	if c.StreamPort == "" {
		c.StreamPort = proxy.DefaultStreamPort
	}
	if c.Port == "" {
		c.Port = PortValue(defaults.ListenPort)
	}
	if c.Protocol == "" {
		c.Protocol = "http:"
	}
	c.selfHost = defaults.ListenHost
	switch c.FilterBy {
	case "":
		c.FilterBy = FilterByKey
	case FilterByKey, FilterByNickname:
	default:
		return errors.Wrapf(internal.ErrInvalidConfig, "session %s has unknown filterBy %q", c.ID, c.FilterBy)
	}
	for _, p := range []PortValue{c.TargetPort, c.StreamPort, c.Port} {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "session %s", c.ID)
		}
	}
	if c.UpdateInterval < 0 || c.RetryDelay < 0 {
		return errors.Wrapf(internal.ErrInvalidConfig, "session %s has negative interval", c.ID)
	}
	return nil
}

// UpdateDuration is the rotation interval once cameras are loaded.
func (c *SessionConfig) UpdateDuration() time.Duration {
	if c.UpdateInterval < 1 {
		return DefaultUpdateInterval
	}
	return time.Duration(c.UpdateInterval) * time.Millisecond
}

// RetryDuration is the discovery interval and the rotation interval while loading.
func (c *SessionConfig) RetryDuration() time.Duration {
	if c.RetryDelay < 1 {
		return DefaultRetryDelay
	}
	return time.Duration(c.RetryDelay) * time.Millisecond
}

func (c *SessionConfig) ProxyRules() (proxy.Rules, error) {
	proxyTarget, err := proxy.ParseTarget(c.TargetHost, c.TargetPort.String())
	if err != nil {
		return proxy.Rules{}, errors.Wrapf(err, "session %s", c.ID)
	}
	streamTarget, err := proxy.ParseTarget(c.TargetHost, c.StreamPort.String())
	if err != nil {
		return proxy.Rules{}, errors.Wrapf(err, "session %s", c.ID)
	}
	return proxy.Rules{Name: c.Name, ProxyTarget: proxyTarget, StreamTarget: streamTarget}, nil
}

// ApiAddress is the self proxied camera list endpoint of the session.
func (c *SessionConfig) ApiAddress() string {
	return bridge.SelfProxyAddress(c.Protocol, c.selfHost, c.Port.String(), url.PathEscape(c.Name))
}

// Compare SessionConfig with another SessionConfig
func (c *SessionConfig) IsEqual(other *SessionConfig) bool {
	return c.ID == other.ID &&
		c.Name == other.Name &&
		c.TargetHost == other.TargetHost &&
		c.TargetPort == other.TargetPort &&
		c.StreamPort == other.StreamPort &&
		c.Filter.IsEqual(other.Filter) &&
		c.FilterBy == other.FilterBy &&
		c.UpdateInterval == other.UpdateInterval &&
		c.RetryDelay == other.RetryDelay &&
		c.Protocol == other.Protocol &&
		c.Port == other.Port
}

type IntegrationConfig struct {
	Sessions []SessionConfig
}
