package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		RegistrarHost:    "pbx.example.com",
		RegistrarPort:    5060,
		Username:         "alice",
		Password:         "secret",
		Transport:        "udp",
		BindAddr:         "0.0.0.0",
		BindPort:         5060,
		AdvertiseAddr:    "192.168.1.10",
		Environment:      EnvDevelopment,
		RegisterExpiry:   3600,
		MaxRegisterTries: 3,
		MediaPort:        40000,
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no registrar", func(c *Config) { c.RegistrarHost = "" }, "registrar"},
		{"no username", func(c *Config) { c.Username = "" }, "username"},
		{"bad sip port", func(c *Config) { c.BindPort = 70000 }, "sip port"},
		{"bad registrar port", func(c *Config) { c.RegistrarPort = -1 }, "registrar port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	cfg := validConfig()
	cfg.Transport = "SCTP"
	cfg.Environment = "staging"
	cfg.AdvertiseAddr = ""
	cfg.RegisterExpiry = 0
	cfg.MaxRegisterTries = -2
	cfg.MediaPort = 0

	cfg.Normalize()

	if cfg.Transport != "udp" {
		t.Errorf("Transport = %q, want udp", cfg.Transport)
	}
	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.AdvertiseAddr != cfg.BindAddr {
		t.Errorf("AdvertiseAddr = %q, want bind address fallback", cfg.AdvertiseAddr)
	}
	if cfg.RegisterExpiry != 3600 {
		t.Errorf("RegisterExpiry = %d, want 3600", cfg.RegisterExpiry)
	}
	if cfg.MaxRegisterTries != 3 {
		t.Errorf("MaxRegisterTries = %d, want 3", cfg.MaxRegisterTries)
	}
	if cfg.MediaPort != 40000 {
		t.Errorf("MediaPort = %d, want 40000", cfg.MediaPort)
	}
}

func TestNormalizeKeepsValidValues(t *testing.T) {
	cfg := validConfig()
	cfg.Transport = "TCP"
	cfg.Environment = "PRODUCTION"

	cfg.Normalize()

	if cfg.Transport != "tcp" {
		t.Errorf("Transport = %q, want tcp", cfg.Transport)
	}
	if cfg.Environment != EnvProduction {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
}

func TestAddressHelpers(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ListenAddr(); got != "0.0.0.0:5060" {
		t.Errorf("ListenAddr = %q", got)
	}
	if got := cfg.RegistrarAddr(); got != "pbx.example.com:5060" {
		t.Errorf("RegistrarAddr = %q", got)
	}
}
