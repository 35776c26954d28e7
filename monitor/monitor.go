// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package monitor runs the periodic analysis cycle: every interval, each
// sector is analyzed for both metrics, cascades are correlated, and
// high-severity cascades are handed to the mitigation controller.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/concurrent"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/mitigation"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// SectorSource enumerates the sector topology to analyze each cycle.
	SectorSource interface {
		Sectors(ctx context.Context) ([]*pipeline.Sector, error)
	}

	// Monitor drives the periodic analysis cycle.
	Monitor struct {
		Sectors    SectorSource
		Correlator *cascade.Correlator
		Controller *mitigation.Controller
		Thresholds *mitigation.ThresholdStore

		// Interval between cycles. Defaults to 30s.
		Interval time.Duration

		// Lookback is the reading window per device. Defaults to 10m.
		Lookback time.Duration

		// Timeout bounds one sector-metric analysis. Defaults to 15s.
		Timeout time.Duration

		// Workers bounds concurrent sector analyses. Defaults to 4.
		Workers uint

		Logger  *slog.Logger
		Metrics *Metrics
	}
)

var errAnalysisTimeout = &errors.Error{
	Kind:        errors.Timeout,
	Message:     "sector analysis timed out",
	TimeoutName: "AnalysisTimeout",
}

// Run executes cycles until the context is canceled. A cycle failure is
// logged and the monitor waits for the next tick; nothing here is fatal.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := wallclock.Instance.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		m.Cycle(ctx)
		select {
		case <-ticker.C():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Cycle analyzes all sectors once, bounded by the worker pool.
func (m *Monitor) Cycle(ctx context.Context) {
	m.Metrics.cycle()
	logger := log.Wrap(m.Logger)

	sectors, err := m.Sectors.Sectors(ctx)
	if err != nil {
		m.Metrics.cycleFailure()
		logger.Err(ctx, errors.Normalize(err, "sector enumeration failed"))
		return
	}

	done := make(chan struct{}, len(sectors))
	dispatch, stop := concurrent.Dispatch(
		m.workers(),
		func(ctx context.Context, sector *pipeline.Sector) {
			defer func() { done <- struct{}{} }()
			m.analyzeSector(ctx, sector)
		},
	)
	defer stop()

	for _, sector := range sectors {
		dispatch(ctx, sector)
	}
	for range sectors {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

// analyzeSector runs both metrics for one sector. A panic in one sector's
// analysis is contained there; other sectors and later cycles are unaffected.
func (m *Monitor) analyzeSector(ctx context.Context, sector *pipeline.Sector) {
	logger := log.Wrap(m.Logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Err(ctx, &errors.Error{
				Kind:     errors.InternalError,
				Message:  fmt.Sprintf("sector analysis panic: %v", r),
				SectorID: sector.ID,
			})
		}
	}()

	for _, metric := range pipeline.Metrics {
		report, err := m.analyzeMetric(ctx, sector, metric)
		if err != nil {
			logger.Warn(ctx, err)
			continue
		}

		m.Metrics.anomalies(sector.ID, string(metric), report.AnomaliesDetected)
		if !report.CascadeDetected {
			continue
		}
		m.Metrics.cascade(sector.ID, string(report.Direction))
		logger.Log(ctx, slog.LevelWarn, "cascade detected",
			slog.String("sectorId", sector.ID),
			slog.String("metric", string(metric)),
			slog.String("direction", string(report.Direction)),
		)

		m.mitigate(ctx, sector, report)
	}
}

func (m *Monitor) analyzeMetric(
	ctx context.Context,
	sector *pipeline.Sector,
	metric pipeline.Metric,
) (*cascade.Report, error) {
	ctx, cancel := wallclock.Instance.WithTimeoutCause(
		ctx, m.timeout(), errAnalysisTimeout,
	)
	defer cancel()

	return m.Correlator.Correlate(
		ctx,
		sector,
		metric,
		m.lookback(),
		m.Thresholds.Get().For(metric),
	)
}

// mitigate hands a detected cascade to the controller. Cascades found by the
// cycle are always treated as high severity; lower severities only arrive via
// the inbound API from upstream analytics.
func (m *Monitor) mitigate(
	ctx context.Context,
	sector *pipeline.Sector,
	report *cascade.Report,
) {
	logger := log.Wrap(m.Logger)

	decision, err := m.Controller.Decide(ctx, mitigation.CascadeSignal{
		Sector:   sector,
		Report:   report,
		Severity: pipeline.SeverityHigh,
	})
	if err != nil {
		m.Metrics.actuation(sector.ID, resultFailed)
		logger.Err(ctx, err)
		return
	}
	if decision.Action == nil {
		m.Metrics.actuation(sector.ID, resultNoAction)
		return
	}
	m.Metrics.actuation(sector.ID, resultActuated)
}

func (m *Monitor) interval() time.Duration {
	if m.Interval == 0 {
		return 30 * time.Second
	}
	return m.Interval
}

func (m *Monitor) lookback() time.Duration {
	if m.Lookback == 0 {
		return 10 * time.Minute
	}
	return m.Lookback
}

func (m *Monitor) timeout() time.Duration {
	if m.Timeout == 0 {
		return 15 * time.Second
	}
	return m.Timeout
}

func (m *Monitor) workers() uint {
	if m.Workers == 0 {
		return 4
	}
	return m.Workers
}
