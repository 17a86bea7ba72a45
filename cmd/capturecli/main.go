// Command capturecli runs the microphone and/or system-audio capture
// pipeline standalone, counting delivered frames and logging per-controller
// totals on shutdown, so the pipeline can be exercised without a full
// speech-to-text front end attached.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fenwick-labs/sttcapture/internal/audio"
	"github.com/fenwick-labs/sttcapture/internal/config"
	"github.com/fenwick-labs/sttcapture/internal/telemetry"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := telemetry.New(cfg.LogLevel)

	if cfg.ListDevices {
		listDevices(log)
		return
	}

	log.Info("capturecli starting", "mic", cfg.EnableMic, "system", cfg.EnableSystem, "hq_resample", cfg.HighQualityResample)

	var metrics *telemetry.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		go serveMetrics(cfg.MetricsAddr, reg, log)
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var controllers []*audio.Controller
	opts := controllerOptions(cfg, metrics)

	if cfg.EnableMic {
		mic, err := audio.NewMicrophoneSource(cfg.MicDeviceID)
		if err != nil {
			log.Error("failed to open microphone", "err", err)
			os.Exit(1)
		}
		ctrl := audio.NewMicController(mic, log.With("source", "mic"), opts...)
		controllers = append(controllers, ctrl)
	}

	if cfg.EnableSystem {
		sys, err := audio.NewSystemSource(cfg.SysDeviceID, log.With("source", "system"))
		if err != nil {
			log.Error("failed to open system-audio source", "err", err)
			os.Exit(1)
		}
		ctrl := audio.NewSystemController(sys, log.With("source", "system"), opts...)
		controllers = append(controllers, ctrl)
	}

	var frameCount [2]int64 // indexed by controller slice position, reported on shutdown
	for i, ctrl := range controllers {
		i, ctrl := i, ctrl
		if err := ctrl.Start(func(frame audio.Frame) {
			frameCount[i]++
		}); err != nil {
			log.Error("failed to start capture", "err", err)
			os.Exit(1)
		}
	}

	log.Info("capture running, press ctrl+c to stop")

	<-sigChan
	log.Info("shutdown signal received")
	cancel()

	stopped := make(chan struct{})
	go func() {
		for _, ctrl := range controllers {
			ctrl.Stop()
		}
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("shutdown complete")
	case <-time.After(5 * time.Second):
		log.Warn("shutdown timeout, forcing exit")
	}

	for i, ctrl := range controllers {
		sent, suppressed := ctrl.Stats()
		log.Info("controller stats", "index", i, "frames_sent", sent, "frames_suppressed", suppressed, "delivered", frameCount[i])
	}
}

func controllerOptions(cfg *config.Config, metrics *telemetry.Metrics) []audio.ControllerOption {
	var opts []audio.ControllerOption
	if cfg.HighQualityResample {
		opts = append(opts, audio.WithHighQualityResample())
	}
	if metrics != nil {
		opts = append(opts, audio.WithMetrics(metrics))
	}
	return opts
}

func listDevices(log *telemetry.Logger) {
	inputs, err := audio.ListInputDevices()
	if err != nil {
		log.Error("failed to list input devices", "err", err)
	}
	for _, d := range inputs {
		fmt.Printf("input\t%s\t%s\n", d.ID, d.Name)
	}

	outputs, err := audio.ListOutputDevices()
	if err != nil {
		log.Error("failed to list output devices", "err", err)
	}
	for _, d := range outputs {
		fmt.Printf("output\t%s\t%s\n", d.ID, d.Name)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *telemetry.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server exited", "err", err)
	}
}
