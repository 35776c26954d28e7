// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// The sentinel monitors pipeline sectors for anomalies and cascades, and
// closes sector valves when the mitigation policy calls for it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/actuator"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/anomaly"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/api"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/config"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/forecast"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/mitigation"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/monitor"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/readings"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/registry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil &&
		!errors.Is(err, context.Canceled) {
		slog.Error("sentinel exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	settings, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	slog.Info("starting sentinel",
		"registry_url", settings.RegistryURL,
		"readings_backend", settings.ReadingsBackend,
		"broker", settings.Broker.Hostname,
		"api_port", settings.APIPort,
	)

	// Registry and topology.
	reg := registry.NewClient(
		settings.RegistryURL,
		registry.WithRegisterInterval(settings.RegisterInterval),
		registry.WithLogger(logger),
	)
	topology := &registry.Topology{Registry: reg}

	// Readings backend, optionally augmented with forecasts.
	source, err := readings.New(readings.Config{
		Backend:      settings.ReadingsBackend,
		URL:          settings.ReadingsURL,
		InfluxURL:    settings.InfluxURL,
		InfluxToken:  settings.InfluxToken,
		InfluxOrg:    settings.InfluxOrg,
		InfluxBucket: settings.InfluxBucket,
	})
	if err != nil {
		return err
	}
	if closer, ok := source.(interface{ Close() }); ok {
		defer closer.Close()
	}

	var windows cascade.WindowSource = readings.Windows{Source: source}
	if settings.ForecastURL != "" {
		windows = forecast.Windows{
			Base:   windows,
			Model:  forecast.NewHTTPForecaster(settings.ForecastURL, 0),
			Logger: logger,
		}
	}

	// Mitigation thresholds, optionally from file.
	thresholds := mitigation.DefaultThresholds
	if settings.ThresholdsFile != "" {
		thresholds, err = mitigation.LoadThresholds(settings.ThresholdsFile)
		if err != nil {
			return err
		}
	}
	store := mitigation.NewValveStore()
	thresholdStore := mitigation.NewThresholdStore(thresholds)

	// Actuation channel.
	var provider actuator.ConnectionProvider
	if settings.Broker.UseTLS {
		provider = actuator.TLSConnection(
			settings.Broker.Hostname, settings.Broker.TCPPort, nil,
		)
	} else {
		provider = actuator.TCPConnection(
			settings.Broker.Hostname, settings.Broker.TCPPort,
		)
	}
	channel := actuator.NewClient(
		provider,
		actuator.WithClientID(settings.Broker.ClientID),
		actuator.WithCredentials(
			settings.Broker.Username, []byte(settings.Broker.Password),
		),
		actuator.WithKeepAlive(settings.Broker.KeepAlive),
		actuator.WithLogger(logger),
	)
	if err := channel.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = channel.Disconnect() }()

	unsubscribe, err := channel.SubscribeStatus(
		ctx,
		func(state pipeline.ValveState) { store.Observe(state) },
	)
	if err != nil {
		return err
	}
	defer unsubscribe()

	controller := &mitigation.Controller{
		Store:      store,
		Thresholds: thresholdStore,
		Channel:    channel,
		Logger:     logger,
	}
	correlator := &cascade.Correlator{
		Detector: &anomaly.Detector{},
		Source:   windows,
	}

	promRegistry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(promRegistry)

	mon := &monitor.Monitor{
		Sectors:    topology,
		Correlator: correlator,
		Controller: controller,
		Thresholds: thresholdStore,
		Interval:   settings.AnalysisInterval,
		Lookback:   settings.Lookback,
		Timeout:    settings.AnalysisTimeout,
		Workers:    settings.Workers,
		Logger:     logger,
		Metrics:    metrics,
	}

	server := &api.Server{
		Sectors:    topology,
		Correlator: correlator,
		Controller: controller,
		Thresholds: thresholdStore,
		Lookback:   settings.Lookback,
		Gatherer:   promRegistry,
		Logger:     logger,
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.APIPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 3)
	go func() {
		errs <- mon.Run(ctx)
	}()
	go func() {
		errs <- reg.Maintain(ctx, registry.Descriptor{
			ServiceType: "sentinel",
			Address:     settings.ServiceAddress,
		})
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err = <-errs:
	case <-ctx.Done():
		err = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return err
}
