package domoticz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20

	apiPath = "/json.htm"

	// Domoticz hardware type codes.
	deviceTypeLight    = 244
	subTypeSwitch      = 73
	subTypeSelector    = 62
	switchTypeOnOff    = 0
	switchTypeSelector = 18
)

// Logger is the optional logging interface.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Client wraps the Domoticz JSON API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL     string
	hardwareIdx int
	username    string
	password    string
	http        *http.Client
	logger      Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL overrides the http://host:port derived from the configuration.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithLogger sets a logger for request tracing.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client from the domoticz section of config.yaml.
func New(cfg config.DomoticzConfig, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	c := &Client{
		baseURL:     fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		hardwareIdx: cfg.HardwareIdx,
		username:    cfg.Username,
		password:    cfg.Password,
		http:        &http.Client{Timeout: timeout},
		logger:      noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Device is one entry of a getdevices result.
type Device struct {
	Idx        int    `mapstructure:"idx" json:"idx"`
	Name       string `mapstructure:"Name" json:"name"`
	Data       string `mapstructure:"Data" json:"data"`
	NValue     int    `mapstructure:"nValue" json:"nvalue"`
	SValue     string `mapstructure:"sValue" json:"svalue"`
	Level      int    `mapstructure:"Level" json:"level"`
	HardwareID int    `mapstructure:"HardwareID" json:"hardware_id"`
	Type       string `mapstructure:"Type" json:"type"`
	SubType    string `mapstructure:"SubType" json:"sub_type"`
	SwitchType string `mapstructure:"SwitchType" json:"switch_type"`
	Used       int    `mapstructure:"Used" json:"used"`
	LastUpdate string `mapstructure:"LastUpdate" json:"last_update"`
}

// SelectorOptions describes a selector switch.
type SelectorOptions struct {
	// LevelNames are the labels for levels 0, 10, 20, ...; the first is Off.
	LevelNames     []string
	LevelOffHidden bool
	// SelectorStyle 0 renders buttons, 1 a drop-down menu.
	SelectorStyle int
}

// encode renders the options the way setused expects them: the
// "key:value;key:value" string, base64 encoded.
func (o SelectorOptions) encode() string {
	actions := strings.Repeat("|", max(len(o.LevelNames)-1, 0))
	raw := fmt.Sprintf("LevelNames:%s;LevelActions:%s;SelectorStyle:%d;LevelOffHidden:%t",
		strings.Join(o.LevelNames, "|"), actions, o.SelectorStyle, o.LevelOffHidden)
	return encodeOptions(raw)
}

// CreateSwitch creates an On/Off switch on the configured hardware.
//
// Returns:
//   - int: idx of the new device
//   - error: ErrRequestFailed, ErrAPIError or ErrInvalidResponse
func (c *Client) CreateSwitch(ctx context.Context, name string) (int, error) {
	idx, err := c.createDevice(ctx, name, subTypeSwitch)
	if err != nil {
		return 0, err
	}
	if err := c.setUsed(ctx, idx, name, switchTypeOnOff, ""); err != nil {
		return idx, err
	}
	return idx, nil
}

// CreateSelector creates a selector switch with the given levels.
func (c *Client) CreateSelector(ctx context.Context, name string, opts SelectorOptions) (int, error) {
	idx, err := c.createDevice(ctx, name, subTypeSelector)
	if err != nil {
		return 0, err
	}
	if err := c.setUsed(ctx, idx, name, switchTypeSelector, opts.encode()); err != nil {
		return idx, err
	}
	return idx, nil
}

func (c *Client) createDevice(ctx context.Context, name string, subType int) (int, error) {
	var resp struct {
		Idx any `json:"idx"`
	}
	err := c.command(ctx, "createdevice", url.Values{
		"idx":           {strconv.Itoa(c.hardwareIdx)},
		"sensorname":    {name},
		"devicetype":    {strconv.Itoa(deviceTypeLight)},
		"devicesubtype": {strconv.Itoa(subType)},
	}, &resp)
	if err != nil {
		return 0, err
	}

	var idx int
	if err := mapstructure.WeakDecode(resp.Idx, &idx); err != nil || idx <= 0 {
		return 0, fmt.Errorf("%w: createdevice returned idx %v", ErrInvalidResponse, resp.Idx)
	}
	c.logger.Debug("domoticz device created", "idx", idx, "name", name)
	return idx, nil
}

func (c *Client) setUsed(ctx context.Context, idx int, name string, switchType int, options string) error {
	params := url.Values{
		"idx":        {strconv.Itoa(idx)},
		"name":       {name},
		"switchtype": {strconv.Itoa(switchType)},
		"used":       {"true"},
	}
	if options != "" {
		params.Set("options", options)
	}
	return c.command(ctx, "setused", params, nil)
}

// RenameDevice changes the display name of idx.
func (c *Client) RenameDevice(ctx context.Context, idx int, name string) error {
	return c.command(ctx, "renamedevice", url.Values{
		"idx":  {strconv.Itoa(idx)},
		"name": {name},
	}, nil)
}

// DeleteDevice removes idx from Domoticz.
func (c *Client) DeleteDevice(ctx context.Context, idx int) error {
	return c.command(ctx, "deletedevice", url.Values{"idx": {strconv.Itoa(idx)}}, nil)
}

// UpdateDevice sets nValue/sValue of idx. This is the JSON fallback for
// the MQTT domoticz/in topic.
func (c *Client) UpdateDevice(ctx context.Context, idx, nValue int, sValue string) error {
	return c.command(ctx, "udevice", url.Values{
		"idx":    {strconv.Itoa(idx)},
		"nvalue": {strconv.Itoa(nValue)},
		"svalue": {sValue},
	}, nil)
}

// GetDevice reads a single device.
//
// Returns:
//   - Device: The device
//   - error: ErrDeviceNotFound when idx does not exist
func (c *Client) GetDevice(ctx context.Context, idx int) (Device, error) {
	var resp struct {
		Result []map[string]any `json:"result"`
	}
	if err := c.command(ctx, "getdevices", url.Values{"rid": {strconv.Itoa(idx)}}, &resp); err != nil {
		return Device{}, err
	}
	if len(resp.Result) == 0 {
		return Device{}, fmt.Errorf("%w: idx %d", ErrDeviceNotFound, idx)
	}

	var dev Device
	if err := weakDecode(resp.Result[0], &dev); err != nil {
		return Device{}, fmt.Errorf("%w: device %d: %w", ErrInvalidResponse, idx, err)
	}
	return dev, nil
}

// Version returns the Domoticz version string. It doubles as a health check.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.command(ctx, "getversion", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// HealthCheck verifies the server answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// command calls /json.htm?type=command&param=<param>&... and decodes the
// body into out (may be nil). A status other than "OK" is ErrAPIError.
func (c *Client) command(ctx context.Context, param string, params url.Values, out any) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("type", "command")
	q.Set("param", param)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: building %s request: %w", ErrRequestFailed, param, err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.logger.Debug("domoticz request", "param", param)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, param, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, param)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s: HTTP %d", ErrRequestFailed, param, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", ErrRequestFailed, param, err)
	}

	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, param, err)
	}
	if status.Status != "OK" {
		msg := status.Message
		if msg == "" {
			msg = status.Status
		}
		return fmt.Errorf("%w: %s: %s", ErrAPIError, param, msg)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, param, err)
		}
	}
	return nil
}
