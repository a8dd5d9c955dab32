// Command lumirise wires the MQTT connection supervisor, dimmer state
// monitor, interruption detector, and alarm executor into a runnable
// process, per SPEC_FULL.md's composition-root module. It does not serve
// HTTP, persist alarm rows, or dispatch cron triggers — those surfaces are
// out of scope (spec.md §1) and owned by other processes. The binary builds
// the Execute(alarmId) entry point (alarmRegistry) but exposes no interface
// through which another process can call it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumirise/lumirise/internal/alarm"
	"github.com/lumirise/lumirise/internal/config"
	"github.com/lumirise/lumirise/internal/dimmer"
	"github.com/lumirise/lumirise/internal/interruption"
	"github.com/lumirise/lumirise/internal/logging"
	"github.com/lumirise/lumirise/internal/mqttsup"
)

func main() {
	cfg, err := config.Load(os.Getenv("LUMIRISE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumirise: config: %v\n", err)
		os.Exit(1)
	}

	base, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumirise: logging: %v\n", err)
		os.Exit(1)
	}
	defer base.Sync()

	log := logging.Named(base, "main")
	log.Infow("starting lumirise", "broker", fmt.Sprintf("%s:%d", cfg.Broker.Server, cfg.Broker.Port))

	supervisor := mqttsup.New(mqttsup.Options{
		Server:                  cfg.Broker.Server,
		Port:                    cfg.Broker.Port,
		ClientID:                cfg.Broker.ClientID,
		Username:                cfg.Broker.Username,
		Password:                cfg.Broker.Password,
		KeepAlive:               time.Duration(cfg.Broker.KeepAliveSeconds) * time.Second,
		ReconnectionDelay:       cfg.Reconnect.BaseDelay(),
		MaxReconnectionDelay:    cfg.Reconnect.MaxDelay(),
		BackoffMultiplier:       cfg.Reconnect.BackoffMultiplier,
		MaxReconnectionAttempts: cfg.Reconnect.MaxReconnectionAttempts,
		CommandTimeout:          cfg.Publish.CommandTimeout(),
		CommandQueueDepth:       cfg.Publish.CommandQueueDepth,
	}, logging.Named(base, "mqttsup"))

	if err := supervisor.Connect(); err != nil {
		log.Fatalw("supervisor connect failed", "error", err)
	}

	monitor := dimmer.NewMonitor(supervisor, cfg.Topics.PowerStatus, cfg.Topics.BrightnessStatus, logging.Named(base, "dimmer.monitor"))
	publisher := dimmer.NewPublisher(supervisor, cfg.Topics.PowerCommand, cfg.Topics.BrightnessCommand,
		cfg.Dimmer.MinimumBrightnessPercent, cfg.Dimmer.RampStepDelay(), logging.Named(base, "dimmer.publisher"))

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.Publish.CommandTimeout())
	if err := monitor.Start(startCtx); err != nil {
		log.Fatalw("monitor start failed", "error", err)
	}
	cancelStart()

	detector := interruption.New()
	changes, _ := monitor.StateChanges()
	detector.Watch(changes)

	executor := alarm.NewExecutor(publisher, detector, logging.Named(base, "alarm.executor"))

	registry := newAlarmRegistry(executor, logging.Named(base, "alarm.registry"))
	_ = registry // wired for Execute(alarmId); the cron dispatch framework that calls it is out of scope.

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())

	monitor.Stop()
	supervisor.Dispose()
}
