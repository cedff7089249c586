package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebas/dialout/internal/api"
	"github.com/sebas/dialout/internal/banner"
	"github.com/sebas/dialout/internal/config"
	"github.com/sebas/dialout/internal/logger"
	"github.com/sebas/dialout/internal/ua"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	banner.Print("Dialout SIP User Agent", []banner.ConfigLine{
		{Label: "Registrar", Value: cfg.RegistrarAddr()},
		{Label: "User", Value: cfg.Username},
		{Label: "Transport", Value: cfg.Transport},
		{Label: "SIP", Value: cfg.ListenAddr()},
		{Label: "API", Value: cfg.APIAddr},
		{Label: "Environment", Value: cfg.Environment},
	})

	engine, err := ua.NewEngine(cfg)
	if err != nil {
		slog.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}

	run(engine, cfg)
}

func run(engine *ua.Engine, cfg *config.Config) {
	logNetworkInterfaces()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := api.NewServer(cfg.APIAddr, engine, engine.Registry(), ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := engine.Run(gctx); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})

	if err := apiServer.Start(); err != nil {
		slog.Error("Failed to start API server", "error", err)
		engine.Shutdown()
		os.Exit(1)
	}
	slog.Info("API available", "addr", "http://"+cfg.APIAddr)

	if err := g.Wait(); err != nil {
		slog.Error("Startup failed", "error", err)
		_ = apiServer.Stop()
		engine.Shutdown()
		os.Exit(1)
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	engine.Shutdown()
	_ = apiServer.Stop()
	cancel()

	time.Sleep(1 * time.Second)
}

func logNetworkInterfaces() {
	interfaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			slog.Debug("Network interface", "interface", iface.Name, "ip", ip.String())
		}
	}
}
