package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/openbiocards/biocard-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	client, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() should return nil client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	client, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "test-token",
		Org:     "test",
		Bucket:  "test",
	})
	if err == nil {
		client.Close() //nolint:errcheck // test cleanup
		t.Fatal("Connect() should fail against an unreachable server")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_ZeroValue(t *testing.T) {
	var c Client

	if c.IsConnected() {
		t.Error("zero-value client should not report connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero-value client error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes on a disconnected client are dropped, not panics.
	c.WriteRequestMetric("health", 200, 0)
	c.WriteSecurityEvent("auth_failure", "warning", "")
	c.Flush()
}
