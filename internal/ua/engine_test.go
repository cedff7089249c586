package ua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebas/dialout/internal/config"
)

func engineConfig() *config.Config {
	cfg := &config.Config{
		RegistrarHost:    "127.0.0.1",
		RegistrarPort:    15060,
		Username:         "alice",
		Password:         "secret",
		Transport:        "udp",
		BindAddr:         "127.0.0.1",
		BindPort:         15070,
		AdvertiseAddr:    "127.0.0.1",
		Environment:      config.EnvDevelopment,
		RegisterExpiry:   3600,
		MaxRegisterTries: 1,
		MediaPort:        40000,
	}
	return cfg
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := engineConfig()
	cfg.Username = ""
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("NewEngine accepted a config without a username")
	}
}

func TestMakeCallGatedOnRegistration(t *testing.T) {
	engine, err := NewEngine(engineConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Shutdown()

	// Registration never started, so the future stays pending and the
	// caller's context decides.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = engine.MakeCall(ctx, "100")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("MakeCall = %v, want ErrNotRegistered", err)
	}
	if len(engine.GetAllCalls()) != 0 {
		t.Error("no INVITE may go out before registration settles")
	}
}

func TestStatusBeforeRegistration(t *testing.T) {
	engine, err := NewEngine(engineConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer engine.Shutdown()

	status := engine.Status()
	if status.Registered {
		t.Error("Registered = true before any REGISTER")
	}
	if status.ActiveCalls != 0 || status.TotalCalls != 0 {
		t.Errorf("unexpected call counts: %+v", status)
	}
	if status.Registrar != "127.0.0.1:15060" {
		t.Errorf("registrar = %q", status.Registrar)
	}
}
