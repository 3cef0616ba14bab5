package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "clagehs-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newDisconnectedClient returns a client that was never dialled.
func newDisconnectedClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "clagehs-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "clagehs-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("LWT should be enabled and retained")
	}
	if opts.WillTopic != "clagehs/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("WillPayload not JSON: %v", err)
	}
	if p.Status != PayloadOffline || p.Reason != reasonUnexpected || p.ClientID != "clagehs-test" {
		t.Errorf("WillPayload = %+v", p)
	}
}

func TestBuildStatusPayload_OmitsEmptyReason(t *testing.T) {
	data := buildStatusPayload(PayloadOnline, "x", "")
	if strings.Contains(string(data), "reason") {
		t.Errorf("online payload should not carry a reason: %s", data)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("a", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("a") {
		t.Error("failed subscribe should not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty error = %v", err)
	}
	if err := c.Unsubscribe("a"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe disconnected error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	c := newDisconnectedClient()
	log := &recordingLogger{}
	c.SetLogger(log)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad") }, "t", nil)
	c.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(log.errors) != 1 {
		t.Errorf("errors logged = %d, want 1", len(log.errors))
	}
	if len(log.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1", len(log.warns))
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}
	custom := Topics{DiscoveryPrefix: "ha"}

	tests := []struct {
		got  string
		want string
	}{
		{topics.State("kitchen"), "clagehs/state/kitchen"},
		{topics.Availability("kitchen"), "clagehs/availability/kitchen"},
		{topics.SetTemperatureCommand(), "clagehs/command/set_temperature"},
		{topics.CommandResult("abc"), "clagehs/command/result/abc"},
		{topics.SystemStatus(), "clagehs/system/status"},
		{topics.SystemHealth(), "clagehs/system/health"},
		{topics.AllStates(), "clagehs/state/+"},
		{topics.Discovery("sensor", "kitchen", "heater_rssi"), "homeassistant/sensor/clagehs_kitchen/heater_rssi/config"},
		{custom.Discovery("sensor", "bath", "usage_time"), "ha/sensor/clagehs_bath/usage_time/config"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}
