package stack

import (
	"errors"
	"testing"

	"github.com/sebas/dialout/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		RegistrarHost: "127.0.0.1",
		RegistrarPort: 5060,
		Username:      "test",
		Transport:     "udp",
		BindAddr:      "127.0.0.1",
		BindPort:      0,
	}
	cfg.Normalize()
	return cfg
}

func TestAcquireReusesStack(t *testing.T) {
	reset()
	defer reset()

	first, err := Acquire(testConfig())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Close()

	second, err := Acquire(testConfig())
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if first != second {
		t.Error("expected second Acquire to return the same stack")
	}
}

func TestAcquireDetectsCorruptedStack(t *testing.T) {
	reset()
	defer reset()

	markCorrupted()

	_, err := Acquire(testConfig())
	if !errors.Is(err, ErrStackCorrupted) {
		t.Fatalf("expected ErrStackCorrupted, got %v", err)
	}

	// The flag is cleared, so the next Acquire rebuilds cleanly.
	st, err := Acquire(testConfig())
	if err != nil {
		t.Fatalf("Acquire after corruption failed: %v", err)
	}
	st.Close()
}

func TestCloseClearsProcessFlag(t *testing.T) {
	reset()
	defer reset()

	first, err := Acquire(testConfig())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	first.Close()

	second, err := Acquire(testConfig())
	if err != nil {
		t.Fatalf("Acquire after Close failed: %v", err)
	}
	defer second.Close()
	if first == second {
		t.Error("expected a fresh stack after Close")
	}
}
