//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "clagehs-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	topic := Topics{}.State("integration")
	err = client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topic, []byte(`{"ok":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `{"ok":true}` {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() should fail for a closed port")
	}
}
