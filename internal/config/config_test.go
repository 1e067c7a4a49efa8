package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.JWTIssuer != "saas-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "saas-auth")
	}
	if cfg.AuthzCache != "memory" {
		t.Errorf("AuthzCache = %q, want memory", cfg.AuthzCache)
	}
	if cfg.EventWorkers != 4 {
		t.Errorf("EventWorkers = %d, want 4", cfg.EventWorkers)
	}
	if cfg.EventQueueSize != 1024 {
		t.Errorf("EventQueueSize = %d, want 1024", cfg.EventQueueSize)
	}
	if cfg.EventsKafkaTopic != "saas-domain-events" {
		t.Errorf("EventsKafkaTopic = %q", cfg.EventsKafkaTopic)
	}
	if got := cfg.OptInChannels(); !reflect.DeepEqual(got, []string{"push"}) {
		t.Errorf("OptInChannels = %v, want [push]", got)
	}
	if cfg.DeliveryRatePerSec != 20 {
		t.Errorf("DeliveryRatePerSec = %v, want 20", cfg.DeliveryRatePerSec)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":7000")
	os.Setenv("EVENT_WORKERS", "8")
	os.Setenv("AUTHZ_CACHE", "redis")
	os.Setenv("NOTIFICATION_OPT_IN_CHANNELS", "push, email")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":7000")
	}
	if cfg.EventWorkers != 8 {
		t.Errorf("EventWorkers = %d, want 8", cfg.EventWorkers)
	}
	if cfg.AuthzCache != "redis" {
		t.Errorf("AuthzCache = %q, want redis", cfg.AuthzCache)
	}
	if got := cfg.OptInChannels(); !reflect.DeepEqual(got, []string{"push", "email"}) {
		t.Errorf("OptInChannels = %v", got)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid cache backend", "AUTHZ_CACHE", "memcached"},
		{"zero workers", "EVENT_WORKERS", "0"},
		{"zero queue", "EVENT_QUEUE_SIZE", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load with %s=%s should fail", tt.key, tt.val)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := &Config{
		JWTAccessTTL:            "30m",
		AuthzCacheTTL:           "bogus",
		ListenerTimeout:         "",
		BlockingListenerTimeout: "500ms",
		AuditDedupWindow:        "-1m",
	}
	if got := cfg.AccessTTL(); got != 30*time.Minute {
		t.Errorf("AccessTTL = %v", got)
	}
	if got := cfg.CacheTTL(); got != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want fallback 5m", got)
	}
	if got := cfg.ListenerTimeoutDuration(); got != 10*time.Second {
		t.Errorf("ListenerTimeoutDuration = %v, want fallback 10s", got)
	}
	if got := cfg.BlockingListenerTimeoutDuration(); got != 500*time.Millisecond {
		t.Errorf("BlockingListenerTimeoutDuration = %v", got)
	}
	if got := cfg.AuditDedupWindowDuration(); got != time.Minute {
		t.Errorf("AuditDedupWindowDuration = %v, want fallback 1m", got)
	}
}

func TestEventsKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if nilCfg.EventsKafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
	cfg := &Config{EventsKafkaBrokers: "a:9092, ,b:9092"}
	if got := cfg.EventsKafkaBrokersList(); !reflect.DeepEqual(got, []string{"a:9092", "b:9092"}) {
		t.Errorf("EventsKafkaBrokersList = %v", got)
	}
}
