// Command tank-monitor polls configured sensors, conditions the readings,
// and publishes merged telemetry snapshots to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/tank-monitor/internal/config"
	"github.com/sweeney/tank-monitor/internal/display"
	"github.com/sweeney/tank-monitor/internal/driver"
	"github.com/sweeney/tank-monitor/internal/metrics"
	"github.com/sweeney/tank-monitor/internal/mqtt"
	"github.com/sweeney/tank-monitor/internal/pipeline"
	"github.com/sweeney/tank-monitor/internal/status"
	"github.com/sweeney/tank-monitor/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/tank-monitor/config.yaml", "Path to YAML configuration")
	broker := flag.String("broker", "", "Override MQTT broker address (empty = use config)")
	httpAddr := flag.String("http", "", "Override HTTP status address (empty = use config)")
	printOnce := flag.Bool("print-once", false, "Run one collection cycle, print the snapshot, and exit")
	verbose := flag.Bool("verbose", false, "Log filtering decisions")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *verbose {
		cfg.Verbose = true
	}

	if err := run(cfg, *printOnce); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printOnce bool) error {
	// Build all bundles up front; a configuration error aborts startup with
	// the full list of problems.
	bundles, err := pipeline.NewBuilder(driver.Default()).BuildAll(cfg.Records())
	if err != nil {
		return fmt.Errorf("build sensors: %w", err)
	}

	clk := clock.New()

	// Print-once mode: one cycle straight to stdout, no services.
	if printOnce {
		collector := pipeline.NewCollector(cfg.DeviceName, bundles, clk, nil)
		defer collector.Close()
		snap, _ := collector.Collect(context.Background())
		payload, err := mqtt.FormatTelemetryPayload(snap)
		if err != nil {
			return fmt.Errorf("format snapshot: %w", err)
		}
		fmt.Println(string(payload))
		return nil
	}

	met := metrics.New()
	collector := pipeline.NewCollector(cfg.DeviceName, bundles, clk, met)
	collector.Verbose = cfg.Verbose
	defer collector.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Device:      cfg.DeviceName,
		TickMs:      cfg.Tick.Std().Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Std().Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		real := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			BufferSize:  cfg.MQTT.BufferSize,
		})
		publisher = real
		mqttStatus = real
		defer publisher.Close()
	}

	displays, err := buildDisplays(cfg.Displays)
	if err != nil {
		return err
	}
	manager := display.NewManager(displays...)
	defer manager.Close()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, promhttp.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	if publisher != nil {
		event := mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     "STARTUP",
			Session:   tracker.Session(),
			Retained:  true,
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	log.Printf("started: device=%s tick=%v sensors=%d broker=%s heartbeat=%v",
		cfg.DeviceName, cfg.Tick.Std(), len(bundles), cfg.MQTT.Broker, cfg.Heartbeat.Std())

	ticker := time.NewTicker(cfg.Tick.Std())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(collector, publisher, mqttStatus, tracker, manager, met, cfg.Heartbeat.Std(), time.Now, ticker.C, sigCh)
}

func runLoop(collector *pipeline.Collector, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, displays *display.Manager, met *metrics.Set, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher != nil {
				event := mqtt.SystemEvent{
					Timestamp: now(),
					Event:     "SHUTDOWN",
					Reason:    signalName,
					Session:   tracker.Session(),
					Retained:  true,
				}
				if err := publisher.PublishSystem(event); err != nil {
					log.Printf("failed to publish shutdown event: %v", err)
				} else {
					log.Printf("published shutdown event")
				}
			}
			return nil

		case <-tick:
			snap, outcomes := collector.Collect(context.Background())
			if len(outcomes) == 0 {
				// Nothing was due; repeating that every tick is noise.
				continue
			}

			tracker.RecordCycle(snap, outcomes)
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if len(snap.Values) > 0 {
				if publisher != nil {
					if err := publisher.PublishTelemetry(snap); err != nil {
						// Don't crash on publish failure.
						log.Printf("publish error: %v", err)
					} else {
						met.Published()
					}
				}
				displays.Render(snap)
			}

			t := now()
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				if publisher != nil {
					event := mqtt.SystemEvent{
						Timestamp: t,
						Event:     "HEARTBEAT",
						Session:   tracker.Session(),
					}
					if err := publisher.PublishSystem(event); err != nil {
						log.Printf("heartbeat publish error: %v", err)
					}
				}
			}
		}
	}
}

func buildDisplays(configs []config.DisplayConfig) ([]display.Display, error) {
	displays := make([]display.Display, 0, len(configs))
	for _, dc := range configs {
		switch dc.Type {
		case "log":
			displays = append(displays, display.NewLogDisplay(dc.Keys))
		default:
			return nil, fmt.Errorf("unknown display type %q", dc.Type)
		}
	}
	return displays, nil
}
