// Command orchestrator runs the pod supervisor and reverse proxy as a
// single process, per the wiring convention in main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"podctl/internal/admin"
	"podctl/internal/config"
	"podctl/internal/dispatcher"
	"podctl/internal/healthprobe"
	"podctl/internal/lifecycle"
	"podctl/internal/proxyhandler"
	"podctl/internal/registry"
	"podctl/internal/release"
	"podctl/internal/runtime"
	"podctl/internal/server"
	"podctl/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default: search ./config.json, ./appconfig.json, /etc/myloadbalancer/config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	rt, err := runtime.New(cfg.Docker.Environment)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	prober := healthprobe.New()
	poller := release.New()
	reg := registry.New()
	sup := supervisor.New(reg, rt, prober, poller)
	disp := dispatcher.New(reg, dispatcher.RoundRobin)
	proxy := proxyhandler.New(disp)
	adminHandler := admin.New(reg, sup)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, adminHandler, proxy, cfg.Deployment.Name, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Start(ctx, rt, sup, cfg); err != nil {
		log.Fatalf("startup: %v", err)
	}

	orch := lifecycle.New(sup, srv)
	if err := orch.Run(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}

	os.Exit(0)
}
