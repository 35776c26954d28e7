// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package cascade infers whether per-device anomalies in a sector are
// propagating sequentially along the pipeline, and in which direction.
package cascade

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/anomaly"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// WindowSource supplies the reading window for one device and metric.
	// Implementations are expected to bound their own I/O timeouts.
	WindowSource interface {
		Window(
			ctx context.Context,
			deviceID string,
			metric pipeline.Metric,
			lookback time.Duration,
		) ([]pipeline.Reading, error)
	}

	// Correlator runs per-device detection across a sector and decides
	// whether a cascade exists.
	Correlator struct {
		Detector *anomaly.Detector
		Source   WindowSource
	}

	// onset pairs a device with its earliest anomalous timestamp.
	onset struct {
		device    pipeline.Device
		at        time.Time
		anomalies []pipeline.AnomalyPoint
	}
)

// Correlate analyzes one sector for one metric. Devices whose readings are
// unavailable simply contribute no anomalies; the error is local to the
// device, not the analysis. A non-nil error is returned only for defects the
// caller must surface, such as a non-positive propagation speed.
func (c *Correlator) Correlate(
	ctx context.Context,
	sector *pipeline.Sector,
	metric pipeline.Metric,
	lookback time.Duration,
	static anomaly.Thresholds,
) (*Report, error) {
	report := &Report{
		SectorID:  sector.ID,
		Metric:    metric,
		Direction: None,
	}

	// Position order is established explicitly; the registry's list order is
	// never trusted.
	onsets := make([]onset, 0, len(sector.Devices))
	for _, device := range sector.DevicesByPosition() {
		window, err := c.Source.Window(ctx, device.ID, metric, lookback)
		if err != nil {
			if errors.IsKind(err, errors.Cancellation) {
				return nil, err
			}
			continue
		}
		report.DevicesAnalyzed++

		anomalies := c.Detector.Detect(window, static)
		report.AnomaliesDetected += len(anomalies)
		if len(anomalies) == 0 {
			continue
		}

		onsets = append(onsets, onset{
			device:    device,
			at:        earliest(anomalies),
			anomalies: anomalies,
		})
	}

	if len(onsets) < 2 {
		return report, nil
	}

	// Order anomalous devices by onset time, then examine their positions.
	sort.Slice(onsets, func(i, j int) bool {
		return onsets[i].at.Before(onsets[j].at)
	})

	report.AffectedDevices = make([]DeviceAnomalies, len(onsets))
	for i, o := range onsets {
		report.AffectedDevices[i] = DeviceAnomalies{
			DeviceID:  o.device.ID,
			Position:  o.device.Position,
			Anomalies: o.anomalies,
		}
	}

	direction, ok := direction(onsets)
	if !ok {
		return report, nil
	}

	speed, err := speed(sector.ID, metric, onsets)
	if err != nil {
		return report, err
	}

	report.CascadeDetected = true
	report.Direction = direction
	report.PropagationSpeedSeconds = &speed
	return report, nil
}

// earliest returns the earliest anomalous timestamp of the list.
func earliest(anomalies []pipeline.AnomalyPoint) time.Time {
	at := anomalies[0].Timestamp
	for _, a := range anomalies[1:] {
		if a.Timestamp.Before(at) {
			at = a.Timestamp
		}
	}
	return at
}

// direction checks the position sequence of the temporally ordered onsets for
// strict monotonicity. Equal onset timestamps make the sequence ambiguous and
// break monotonicity: direction cannot be established, so there is no cascade.
func direction(onsets []onset) (Direction, bool) {
	increasing, decreasing := true, true
	for i := 1; i < len(onsets); i++ {
		if !onsets[i].at.After(onsets[i-1].at) {
			return None, false
		}
		if onsets[i].device.Position <= onsets[i-1].device.Position {
			increasing = false
		}
		if onsets[i].device.Position >= onsets[i-1].device.Position {
			decreasing = false
		}
	}

	switch {
	case increasing:
		return Forward, true
	case decreasing:
		return Backward, true
	default:
		return None, false
	}
}

// speed computes the propagation speed as the mean onset delay in seconds of
// the subsequent devices relative to the first affected device. For two
// devices this is simply their onset delta. A non-positive mean indicates a
// clock or ordering defect across devices and is surfaced rather than clamped.
func speed(
	sectorID string,
	metric pipeline.Metric,
	onsets []onset,
) (float64, error) {
	var total float64
	for i := 1; i < len(onsets); i++ {
		total += onsets[i].at.Sub(onsets[0].at).Seconds()
	}
	mean := total / float64(len(onsets)-1)

	if mean <= 0 {
		return 0, &errors.Error{
			Kind:          errors.InternalError,
			Message:       fmt.Sprintf("non-positive propagation speed %.3fs", mean),
			SectorID:      sectorID,
			Metric:        string(metric),
			PropertyName:  "PropagationSpeedSeconds",
			PropertyValue: mean,
		}
	}
	return mean, nil
}
