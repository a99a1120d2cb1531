package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aquarium-monitor/internal/common/logger"
	"aquarium-monitor/internal/config"
	"aquarium-monitor/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "aquarium-monitor")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. Service
	aquariumService, err := service.NewAquariumService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create aquarium service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Start (blocks while serving HTTP)
	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- aquariumService.Start(ctx)
	}()

	// 5. Wait for a signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serviceErrChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
	}

	cancel()
	if err := aquariumService.Stop(); err != nil {
		log.Error("Failed to stop aquarium service", zap.Error(err))
	}
	log.Info("Aquarium service stopped")
}
