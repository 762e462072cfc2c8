package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APPOINTLY_AUTH_JWT_SECRET", "s3cret")

	cfg, err := load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr(), "0.0.0.0:50051")
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverPostgres)
	}
	if cfg.RateLimitWindow != time.Minute || cfg.RateLimitLimit != 120 {
		t.Fatalf("rate limit = %d/%s, want 120/1m", cfg.RateLimitLimit, cfg.RateLimitWindow)
	}
	if cfg.OTelEnabled {
		t.Fatalf("OTelEnabled = true, want false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPOINTLY_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("APPOINTLY_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("APPOINTLY_STORE_DRIVER", "Memory")
	t.Setenv("APPOINTLY_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("APPOINTLY_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr(), "127.0.0.1:6000")
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreDriverMemory)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout = %s, want 3s", cfg.ShutdownTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.KafkaBrokers != "k1:9092,k2:9092" {
		t.Fatalf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing jwt secret", env: map[string]string{}},
		{name: "bad duration", env: map[string]string{"APPOINTLY_AUTH_JWT_SECRET": "x", "APPOINTLY_OUTBOX_POLL_INTERVAL": "soon"}},
		{name: "unknown driver", env: map[string]string{"APPOINTLY_AUTH_JWT_SECRET": "x", "APPOINTLY_STORE_DRIVER": "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APPOINTLY_AUTH_JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
