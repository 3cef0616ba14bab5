package homeserver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Defaults for talking to a homeserver.
const (
	DefaultUsername = "appuser"
	DefaultPassword = "smart"
	DefaultTimeout  = 5 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20
)

// Config describes how to reach one heater behind a homeserver.
type Config struct {
	// Address is the homeserver IP address.
	Address string

	// HeaterID is the heater unit addressed on the homeserver bus.
	HeaterID string

	Username string
	Password string

	// InsecureTLS accepts the self-signed certificate the homeserver ships with.
	InsecureTLS bool

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// BaseURL overrides "https://<Address>". Used by tests.
	BaseURL string

	// HTTPClient overrides the transport. When nil a client honouring
	// InsecureTLS is built.
	HTTPClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the homeserver's local REST API.
//
// It is safe for concurrent use, but the homeserver itself handles one request
// at a time, so callers serialise requests per device (see device.Registry).
type HTTPClient struct {
	baseURL  string
	heaterID string
	username string
	password string
	timeout  time.Duration
	http     *http.Client
}

// NewHTTPClient builds a client from cfg.
//
// Parameters:
//   - cfg: Address and heater ID are required
//
// Returns:
//   - *HTTPClient: Ready to use, no connection is made yet
//   - error: If Address or HeaterID is empty
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.Address == "" && cfg.BaseURL == "" {
		return nil, errors.New("homeserver: address is required")
	}
	if cfg.HeaterID == "" {
		return nil, errors.New("homeserver: heater id is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.Address
	}
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck,forcetypeassert // DefaultTransport is always *http.Transport
		if cfg.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Homeserver uses a self-signed certificate
		}
		hc = &http.Client{Transport: transport}
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(base, "/"),
		heaterID: cfg.HeaterID,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		http:     hc,
	}, nil
}

// RequestStatus fetches the heater status and its consumption totals.
//
// The log request is best effort: if it fails the snapshot is returned
// without the consumption fields.
func (c *HTTPClient) RequestStatus(ctx context.Context) (Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/devices/status/"+url.PathEscape(c.heaterID), nil)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := decodeStatus(body, c.heaterID)
	if err != nil {
		return snap, err
	}

	logBody, err := c.do(ctx, http.MethodGet, "/devices/logs/"+url.PathEscape(c.heaterID), nil)
	if err != nil {
		return snap, nil //nolint:nilerr // Consumption totals are optional
	}
	totals, err := decodeLogs(logBody, c.heaterID)
	if err != nil {
		return snap, nil //nolint:nilerr // Consumption totals are optional
	}
	for k, v := range totals {
		snap.Fields[k] = v
	}
	return snap, nil
}

// SetTemperature sends a new setpoint. The device expects tenths of °C.
func (c *HTTPClient) SetTemperature(ctx context.Context, celsius int) error {
	form := url.Values{"data": {strconv.Itoa(celsius * 10)}}
	body, err := c.do(ctx, http.MethodPut, "/devices/setpoint/"+url.PathEscape(c.heaterID), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var ack struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if ack.Success != nil && !*ack.Success {
		return fmt.Errorf("%w: setpoint rejected", ErrDeviceReportedFailure)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrConnection, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnection, method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrConnection, method, path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrConnection, err)
	}
	return data, nil
}
