package mqtt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/aide/internal/config"
)

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("instance file not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != first {
		t.Errorf("file holds %q, returned %q", data, first)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second != first {
		t.Errorf("instance ID changed across loads: %q then %q", first, second)
	}
}

func TestLoadOrCreateInstanceID_ReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instance_id")
	if err := os.WriteFile(path, []byte("not-a-uuid\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if id == "not-a-uuid" || len(strings.Split(id, "-")) != 5 {
		t.Errorf("id = %q, want a fresh UUID", id)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != id {
		t.Errorf("file not rewritten: %q", data)
	}
}

func TestNewDeviceInfo(t *testing.T) {
	info := NewDeviceInfo("test-instance-id", "test-device")
	if info.Name != "test-device" {
		t.Errorf("Name = %q, want %q", info.Name, "test-device")
	}
	if len(info.Identifiers) != 1 || info.Identifiers[0] != "test-instance-id" {
		t.Errorf("Identifiers = %v, want [test-instance-id]", info.Identifiers)
	}
}

func testPublisher(stats StatsSource) *Publisher {
	cfg := config.MQTTConfig{
		Broker:          "mqtt://localhost:1883",
		DeviceName:      "den-aide",
		DiscoveryPrefix: "homeassistant",
	}
	return New(cfg, "instance-123", NewDailyUsage(time.UTC), stats, nil)
}

func TestPublisher_TopicPaths(t *testing.T) {
	p := testPublisher(nil)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"baseTopic", p.baseTopic(), "aide/den-aide"},
		{"availabilityTopic", p.availabilityTopic(), "aide/den-aide/availability"},
		{"stateTopic", p.stateTopic("uptime"), "aide/den-aide/uptime/state"},
		{"eventTopic", p.eventTopic("reminder"), "aide/den-aide/events/reminder"},
		{"discoveryTopic", p.discoveryTopic("sensor", "uptime"), "homeassistant/sensor/den-aide/uptime/config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublisher_SensorDefinitions(t *testing.T) {
	p := testPublisher(nil)

	seen := make(map[string]bool)
	for _, d := range p.sensorDefinitions() {
		seen[d.entitySuffix] = true

		// HA prefixes the device name itself when HasEntityName is set.
		if strings.Contains(d.config.Name, "den-aide") {
			t.Errorf("sensor %s: Name %q contains the device name", d.entitySuffix, d.config.Name)
		}
		if !d.config.HasEntityName || d.config.ObjectID != d.entitySuffix {
			t.Errorf("sensor %s: HasEntityName=%v ObjectID=%q", d.entitySuffix, d.config.HasEntityName, d.config.ObjectID)
		}
		if d.config.AvailabilityTopic != "aide/den-aide/availability" {
			t.Errorf("sensor %s: AvailabilityTopic = %q", d.entitySuffix, d.config.AvailabilityTopic)
		}
		if d.config.UniqueID != "instance-123_"+d.entitySuffix {
			t.Errorf("sensor %s: UniqueID = %q", d.entitySuffix, d.config.UniqueID)
		}
	}

	for _, name := range []string{"uptime", "version", "default_model", "tokens_today", "last_request", "deliveries_today"} {
		if !seen[name] {
			t.Errorf("missing sensor definition for %q", name)
		}
	}
}

type fakeStats struct{}

func (fakeStats) Uptime() time.Duration { return 90*time.Minute + 1500*time.Millisecond }
func (fakeStats) Version() string       { return "v1.2.3" }
func (fakeStats) DefaultModel() string  { return "qwen2.5:7b" }
func (fakeStats) DeliveriesToday() int  { return 4 }

func TestPublisher_States(t *testing.T) {
	p := testPublisher(fakeStats{})

	states := p.states()
	if states["last_request"] != "never" {
		t.Errorf("last_request = %q before any request", states["last_request"])
	}

	p.usage.OnTokens(100, 23)
	states = p.states()

	want := map[string]string{
		"uptime":           "1h30m1s",
		"version":          "v1.2.3",
		"default_model":    "qwen2.5:7b",
		"deliveries_today": "4",
		"tokens_today":     "123",
	}
	for k, v := range want {
		if states[k] != v {
			t.Errorf("%s = %q, want %q", k, states[k], v)
		}
	}
	if states["last_request"] == "never" {
		t.Error("last_request not updated")
	}
}

func TestEventPayload(t *testing.T) {
	at := time.Date(2026, 2, 13, 9, 0, 0, 0, time.UTC)
	raw, err := eventPayload("reminder", at, map[string]any{"id": 7})
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		Kind string         `json:"kind"`
		At   string         `json:"at"`
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	if got.Kind != "reminder" || got.At != "2026-02-13T09:00:00Z" || got.Data["id"] != 7 {
		t.Errorf("payload = %s", raw)
	}
}

func TestPublisher_EventBeforeStart(t *testing.T) {
	p := testPublisher(nil)
	// Must not panic or block without a connection.
	p.PublishEvent(context.Background(), "briefing", nil)

	if err := p.AwaitConnection(context.Background()); err == nil {
		t.Error("AwaitConnection before Start should error")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
}

func TestMQTTConfig_Configured(t *testing.T) {
	if (config.MQTTConfig{}).Configured() {
		t.Error("empty config reported configured")
	}
	if !(config.MQTTConfig{Broker: "mqtt://localhost"}).Configured() {
		t.Error("broker-only config not configured")
	}
}
