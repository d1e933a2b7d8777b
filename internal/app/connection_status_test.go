package app

import (
	"testing"

	"github.com/daisycv/visionlink/internal/config"
	"github.com/daisycv/visionlink/internal/connectors"
)

func TestTransportNameFromConnector(t *testing.T) {
	tests := []struct {
		name      string
		connector config.ConnectorType
		want      string
	}{
		{name: "ip", connector: config.ConnectorIP, want: "ip"},
		{name: "serial", connector: config.ConnectorSerial, want: "serial"},
		{name: "unknown", connector: "custom", want: "custom"},
		{name: "empty", connector: "", want: "unknown"},
	}

	for _, tc := range tests {
		if got := TransportNameFromConnector(tc.connector); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConnectionConfig
		want string
	}{
		{name: "ip", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "10.12.34.11", Port: 5800}, want: "10.12.34.11:5800"},
		{name: "ipv6", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "fe80::1", Port: 5800}, want: "[fe80::1]:5800"},
		{name: "ip without host", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Port: 5800}, want: ""},
		{name: "serial", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200}, want: "/dev/ttyACM0@115200"},
		{name: "unknown", cfg: config.ConnectionConfig{Connector: "custom"}, want: ""},
	}

	for _, tc := range tests {
		if got := ConnectionTarget(tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionStatusFromConfig(t *testing.T) {
	status := ConnectionStatusFromConfig(config.ConnectionConfig{
		Connector:  config.ConnectorSerial,
		SerialPort: "/dev/ttyACM2",
		SerialBaud: 115200,
	})

	if status.State != connectors.ConnectionStateConnecting {
		t.Fatalf("expected connecting state, got %q", status.State)
	}
	if status.TransportName != "serial" {
		t.Fatalf("expected serial transport name, got %q", status.TransportName)
	}
	if status.Target != "/dev/ttyACM2@115200" {
		t.Fatalf("expected serial target, got %q", status.Target)
	}
	if status.GapMS != -1 {
		t.Fatalf("expected unknown gap, got %d", status.GapMS)
	}
}

func TestConnectionStatusFromConfigWithoutTarget(t *testing.T) {
	status := ConnectionStatusFromConfig(config.ConnectionConfig{Connector: config.ConnectorIP})
	if status.State != connectors.ConnectionStateDisconnected {
		t.Fatalf("expected disconnected state, got %q", status.State)
	}
}
