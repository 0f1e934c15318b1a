package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET_KEY", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.JWTAccessExpires != "15m" {
		t.Errorf("JWTAccessExpires = %q, want %q", cfg.JWTAccessExpires, "15m")
	}
	if cfg.JWTRefreshExpires != "7d" {
		t.Errorf("JWTRefreshExpires = %q, want %q", cfg.JWTRefreshExpires, "7d")
	}
	if cfg.RateLimitMaxAttempts != 5 {
		t.Errorf("RateLimitMaxAttempts = %d, want 5", cfg.RateLimitMaxAttempts)
	}
	if cfg.ThrottlerTTL != 60 || cfg.ThrottlerLimit != 10 {
		t.Errorf("throttler = %d/%d, want 60/10", cfg.ThrottlerTTL, cfg.ThrottlerLimit)
	}
	if cfg.UsersServiceURL != "http://localhost:3000" {
		t.Errorf("UsersServiceURL = %q", cfg.UsersServiceURL)
	}
	if !cfg.SessionSweepInProcess {
		t.Error("SessionSweepInProcess should default to true")
	}
	if cfg.RefreshTTL() != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.UserCacheTTL() != 24*time.Hour {
		t.Errorf("UserCacheTTL = %v, want 24h", cfg.UserCacheTTL())
	}
	if cfg.SweepInterval() != 10*time.Second {
		t.Errorf("SweepInterval = %v, want 10s", cfg.SweepInterval())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET_KEY", testSecret)
	os.Setenv("PORT", "8088")
	os.Setenv("JWT_ACCESS_EXPIRES", "5m")
	os.Setenv("RATE_LIMIT_MAX_ATTEMPTS", "3")
	os.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8088 {
		t.Errorf("Port = %d, want 8088", cfg.Port)
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.AccessTTL())
	}
	if cfg.RateLimitMaxAttempts != 3 {
		t.Errorf("RateLimitMaxAttempts = %d, want 3", cfg.RateLimitMaxAttempts)
	}
	origins := cfg.AllowedOriginsList()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("AllowedOriginsList = %v", origins)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"no signing key", map[string]string{}, "JWT_SECRET_KEY"},
		{"short secret", map[string]string{"JWT_SECRET_KEY": "short"}, "at least 32"},
		{"half key pair", map[string]string{"JWT_PRIVATE_KEY": "x"}, "set together"},
		{"bad port", map[string]string{"JWT_SECRET_KEY": testSecret, "PORT": "70000"}, "PORT"},
		{"bad refresh", map[string]string{"JWT_SECRET_KEY": testSecret, "JWT_REFRESH_EXPIRES": "soon"}, "JWT_REFRESH_EXPIRES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadWithoutSigningKeys(t *testing.T) {
	os.Clearenv()
	os.Setenv("DATABASE_URL", "postgres://localhost/auth")

	if _, err := Load(); err == nil {
		t.Fatal("Load without signing keys should fail")
	}
	cfg, err := LoadWithoutSigningKeys()
	if err != nil {
		t.Fatalf("LoadWithoutSigningKeys: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/auth" || cfg.SweepInterval() != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}

	os.Setenv("PORT", "0")
	if _, err := LoadWithoutSigningKeys(); err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("non-key validation skipped: err = %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"7d", 168 * time.Hour, true},
		{"15m", 15 * time.Minute, true},
		{"1h30m", 90 * time.Minute, true},
		{"xd", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseDuration(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
	cfg := &Config{KafkaBrokers: "k1:9092, k2:9092"}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
}
