package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regionmaster/internal/mirror"
	"regionmaster/internal/observability/metrics"
	"regionmaster/internal/regionmanager"
	rmconfig "regionmaster/internal/regionmanager/config"
	grpcserver "regionmaster/internal/server/grpc"
)

func main() {
	configPath := flag.String("config", "", "region manager YAML config path")
	addr := flag.String("addr", "0.0.0.0:19080", "gRPC listen address")
	metricsAddr := flag.String("metrics-addr", "0.0.0.0:19090", "Prometheus metrics listen address")
	mirrorDir := flag.String("mirror-dir", "/tmp/regionmaster-master", "bbolt mirror session directory")
	self := flag.String("self", "", "this master instance's identity")
	flag.Parse()

	cfg := regionmanager.Config{Self: *self}
	if *configPath != "" {
		fileCfg, err := rmconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = fileCfg.ManagerConfig()
		if fileCfg.GRPC.Address != "" {
			*addr = fileCfg.GRPC.Address
		}
		if fileCfg.MetricsAddr != "" {
			*metricsAddr = fileCfg.MetricsAddr
		}
		if fileCfg.MirrorDir != "" {
			*mirrorDir = fileCfg.MirrorDir
		}
	}

	session, err := mirror.OpenBoltSession(*mirrorDir)
	if err != nil {
		log.Fatalf("open mirror session: %v", err)
	}
	cfg.Session = session

	manager := regionmanager.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)

	collector := metrics.NewRegionManagerCollector(nil, "")
	if err := metrics.StartServer(ctx, *metricsAddr); err != nil {
		log.Fatalf("start metrics server: %v", err)
	}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collector.Observe(manager.Stats())
			}
		}
	}()

	srv := grpcserver.New(grpcserver.Config{Address: *addr}, manager)
	grpcCtx, grpcCancel := context.WithCancel(context.Background())
	if err := srv.Start(grpcCtx); err != nil {
		log.Fatalf("start grpc server: %v", err)
	}
	log.Printf("region master listening on %s (metrics on %s)", *addr, *metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	grpcCancel()
	cancel()
	if err := manager.Stop(); err != nil {
		log.Printf("manager stop: %v", err)
	}
	log.Println("region master stopped")
}
