package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RoomCapacity != 4 || cfg.MaxServerRooms != 5 {
		t.Errorf("capacity defaults: %d / %d", cfg.RoomCapacity, cfg.MaxServerRooms)
	}
	if cfg.PingPeriod != 54*time.Second || cfg.ChatRateInterval != 3*time.Second {
		t.Errorf("duration defaults: %s / %s", cfg.PingPeriod, cfg.ChatRateInterval)
	}
	if cfg.MediaTimeout != 15*time.Second {
		t.Errorf("media timeout default: %s", cfg.MediaTimeout)
	}
	if cfg.RoutingServerURL != "" {
		t.Errorf("routing enabled by default: %q", cfg.RoutingServerURL)
	}
}

func TestFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := "port: 9000\nroom_capacity: 6\nice_servers:\n  - stun:stun.example.org:3478\nrtc_min_port: 50000\nrtc_max_port: 50100\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STUDYROOM_PORT", "9100")
	t.Setenv("STUDYROOM_ANNOUNCED_IP", "203.0.113.7")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9100 {
		t.Errorf("env did not override port: %d", cfg.Port)
	}
	if cfg.RoomCapacity != 6 || cfg.RTCMinPort != 50000 || cfg.RTCMaxPort != 50100 {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.AnnouncedIP != "203.0.113.7" {
		t.Errorf("announced ip %q", cfg.AnnouncedIP)
	}
	if len(cfg.ICEServers) != 1 {
		t.Errorf("ice servers %v", cfg.ICEServers)
	}
}

func TestInvalidPortRangeRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rtc_min_port: 6000\nrtc_max_port: 5000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("inverted port range accepted")
	}
}
