// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package anomaly flags individual readings and forecast points that fall
// outside static thresholds or the statistical bounds of their window.
package anomaly

import (
	"math"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Thresholds are the static bounds for a metric.
	Thresholds struct {
		High float64 `json:"high" yaml:"high"`
		Low  float64 `json:"low" yaml:"low"`
	}

	// Detector flags out-of-bounds points over a sliding window. Detection is
	// a pure function of its inputs; a Detector carries configuration only.
	Detector struct {
		// MinWindow is the minimum number of points required before any
		// detection is attempted. Defaults to 30.
		MinWindow int

		// Sigmas is the multiple of the population standard deviation used by
		// the statistical test. Defaults to 2.
		Sigmas float64
	}
)

const (
	defaultMinWindow = 30
	defaultSigmas    = 2
)

// Detect returns the anomalous points of the window, in window order. Windows
// smaller than the minimum produce no anomalies rather than a false signal.
// Forecast points are treated identically to historical readings and keep
// their IsPrediction tag.
func (d *Detector) Detect(
	window []pipeline.Reading,
	static Thresholds,
) []pipeline.AnomalyPoint {
	minWindow := d.MinWindow
	if minWindow == 0 {
		minWindow = defaultMinWindow
	}
	if len(window) < minWindow {
		return nil
	}

	sigmas := d.Sigmas
	if sigmas == 0 {
		sigmas = defaultSigmas
	}

	mean, stddev := stats(window)

	var anomalies []pipeline.AnomalyPoint
	for _, r := range window {
		bound, ok := d.check(r.Value, static, mean, stddev, sigmas)
		if !ok {
			continue
		}
		anomalies = append(anomalies, pipeline.AnomalyPoint{
			Timestamp:     r.Timestamp,
			DeviceID:      r.DeviceID,
			Metric:        r.Metric,
			Value:         r.Value,
			BoundViolated: bound,
			IsPrediction:  r.IsPrediction,
		})
	}
	return anomalies
}

// check applies the static thresholds and the statistical test. When stddev is
// zero the statistical test never fires and only the static thresholds apply;
// this degeneration is intentional.
func (*Detector) check(
	value float64,
	static Thresholds,
	mean, stddev, sigmas float64,
) (pipeline.Bound, bool) {
	switch {
	case value > static.High:
		return pipeline.BoundHigh, true
	case value < static.Low:
		return pipeline.BoundLow, true
	case stddev > 0 && value > mean+sigmas*stddev:
		return pipeline.BoundHigh, true
	case stddev > 0 && value < mean-sigmas*stddev:
		return pipeline.BoundLow, true
	}
	return "", false
}

// stats computes the arithmetic mean and population standard deviation of the
// window's values.
func stats(window []pipeline.Reading) (mean, stddev float64) {
	for _, r := range window {
		mean += r.Value
	}
	mean /= float64(len(window))

	var variance float64
	for _, r := range window {
		d := r.Value - mean
		variance += d * d
	}
	variance /= float64(len(window))

	return mean, math.Sqrt(variance)
}
