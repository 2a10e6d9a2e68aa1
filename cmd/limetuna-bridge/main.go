// limetuna-bridge serves the speech command bridge over a local websocket
// for browser development and headless hosts.
//
// Usage:
//
//	limetuna-bridge [-config limetuna.yaml] [-addr 127.0.0.1:8765]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"limetuna/internal/bootstrap"
	"limetuna/internal/config"
	"limetuna/internal/transport/ws"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	flag.Parse()

	if *showVersion {
		fmt.Printf("limetuna-bridge %s\n", version)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log := config.SetupLogging(cfg.Logging, nil)
	log.Info("limetuna-bridge starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := ws.New(cfg.Server.Addr, cfg.Server.ShutdownTimeout, log.With("component", "ws"))
	services, err := bootstrap.Build(cfg, bootstrap.Dependencies{
		Events: server,
		Emit: func(name string, data any) {
			payload, _ := data.(map[string]any)
			server.SpeechEvent(name, payload)
		},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to assemble bridge", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Warn("shutdown finished with errors", "error", err)
		}
	}()

	server.SetReady(true)
	if err := server.ListenAndServe(ctx, services.Bridge); err != nil {
		log.Error("bridge server failed", "error", err)
		cancel()
		return
	}
	log.Info("limetuna-bridge stopped")
}
