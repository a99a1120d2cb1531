package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aquarium-monitor/internal/bridge"
	"aquarium-monitor/internal/common/logger"
	"aquarium-monitor/internal/common/mqtt"
	"aquarium-monitor/internal/config"
	"aquarium-monitor/internal/simulator"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "aquarium-simulator")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// the simulator is a separate MQTT client
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = mqttCfg.ClientID + "-simulator"
	client, err := mqtt.NewClient(&mqttCfg, log)
	if err != nil {
		log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	defer client.Disconnect()

	topics := bridge.Topics{
		TelemetryFormat: cfg.Bridge.TelemetryTopicFormat,
		FeedCommand:     cfg.Bridge.FeedCommandTopic,
		FeedSchedule:    cfg.Bridge.FeedScheduleTopic,
		FeedStatus:      cfg.Bridge.FeedStatusTopic,
	}
	sim := simulator.New(client, simulator.NewGenerator(), topics, cfg.DeviceIDs, cfg.Simulator.Interval, cfg.MQTT.QoS, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sim.Start(ctx); err != nil {
		log.Fatal("Failed to start simulator", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	sim.Stop()
}
