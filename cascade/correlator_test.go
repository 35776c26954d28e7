// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package cascade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/anomaly"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

var (
	t0     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	static = anomaly.Thresholds{High: 85, Low: 0}
)

// fakeSource serves canned windows per device.
type fakeSource struct {
	windows map[string][]pipeline.Reading
	errs    map[string]error
}

func (s *fakeSource) Window(
	_ context.Context,
	deviceID string,
	_ pipeline.Metric,
	_ time.Duration,
) ([]pipeline.Reading, error) {
	if err := s.errs[deviceID]; err != nil {
		return nil, err
	}
	return s.windows[deviceID], nil
}

func sector() *pipeline.Sector {
	// Deliberately out of position order; the correlator must sort.
	return &pipeline.Sector{
		ID:   "sector-7",
		Name: "Sector 7",
		Devices: []pipeline.Device{
			{ID: "dev030", SectorID: "sector-7", Position: 2},
			{ID: "dev010", SectorID: "sector-7", Position: 0},
			{ID: "dev020", SectorID: "sector-7", Position: 1},
		},
	}
}

// normal returns a steady window with no anomalies.
func normal(deviceID string) []pipeline.Reading {
	readings := make([]pipeline.Reading, 5)
	for i := range readings {
		readings[i] = pipeline.Reading{
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			DeviceID:  deviceID,
			Metric:    pipeline.Temperature,
			Value:     50,
		}
	}
	return readings
}

// spiking returns a window whose first anomaly onsets at the given time.
func spiking(deviceID string, onset time.Time) []pipeline.Reading {
	readings := normal(deviceID)
	for i := range readings {
		readings[i].Timestamp = onset.Add(time.Duration(i-1) * time.Second)
	}
	// Index 0 stays normal; the spike onsets exactly at the given time and
	// persists for the rest of the window.
	for i := 1; i < len(readings); i++ {
		readings[i].Value = 95
	}
	return readings
}

func correlator(src cascade.WindowSource) *cascade.Correlator {
	return &cascade.Correlator{
		Detector: &anomaly.Detector{MinWindow: 5},
		Source:   src,
	}
}

func TestCorrelateForwardCascade(t *testing.T) {
	// dev010 pos0 onsets at T0, dev020 pos1 at T0+30s, dev030 pos2 at T0+90s.
	c := correlator(&fakeSource{windows: map[string][]pipeline.Reading{
		"dev010": spiking("dev010", t0),
		"dev020": spiking("dev020", t0.Add(30*time.Second)),
		"dev030": spiking("dev030", t0.Add(90*time.Second)),
	}})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.True(t, report.CascadeDetected)
	require.Equal(t, cascade.Forward, report.Direction)
	require.NotNil(t, report.PropagationSpeedSeconds)
	require.InDelta(t, 60, *report.PropagationSpeedSeconds, 1e-9)
	require.Equal(t, 3, report.DevicesAnalyzed)
	require.Len(t, report.AffectedDevices, 3)
	require.Equal(t, "dev010", report.AffectedDevices[0].DeviceID)
	require.Equal(t, "dev030", report.AffectedDevices[2].DeviceID)
}

func TestCorrelateBackwardCascade(t *testing.T) {
	c := correlator(&fakeSource{windows: map[string][]pipeline.Reading{
		"dev010": spiking("dev010", t0.Add(90*time.Second)),
		"dev020": spiking("dev020", t0.Add(30*time.Second)),
		"dev030": spiking("dev030", t0),
	}})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.True(t, report.CascadeDetected)
	require.Equal(t, cascade.Backward, report.Direction)
}

func TestCorrelateNonMonotonicIsNoCascade(t *testing.T) {
	// Onset order pos1, pos0, pos2 is neither increasing nor decreasing.
	c := correlator(&fakeSource{windows: map[string][]pipeline.Reading{
		"dev010": spiking("dev010", t0.Add(30*time.Second)),
		"dev020": spiking("dev020", t0),
		"dev030": spiking("dev030", t0.Add(90*time.Second)),
	}})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.False(t, report.CascadeDetected)
	require.Equal(t, cascade.None, report.Direction)
	require.Nil(t, report.PropagationSpeedSeconds)
	// Affected devices are still reported in onset order.
	require.Len(t, report.AffectedDevices, 3)
	require.Equal(t, "dev020", report.AffectedDevices[0].DeviceID)
}

func TestCorrelateTiedOnsetsIsNoCascade(t *testing.T) {
	c := correlator(&fakeSource{windows: map[string][]pipeline.Reading{
		"dev010": spiking("dev010", t0),
		"dev020": spiking("dev020", t0),
		"dev030": normal("dev030"),
	}})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.False(t, report.CascadeDetected)
	require.Equal(t, cascade.None, report.Direction)
}

func TestCorrelateSingleAnomalousDevice(t *testing.T) {
	c := correlator(&fakeSource{windows: map[string][]pipeline.Reading{
		"dev010": spiking("dev010", t0),
		"dev020": normal("dev020"),
		"dev030": normal("dev030"),
	}})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.False(t, report.CascadeDetected)
	require.Equal(t, cascade.None, report.Direction)
	require.Nil(t, report.PropagationSpeedSeconds)
	require.Equal(t, 3, report.DevicesAnalyzed)
	require.Equal(t, 4, report.AnomaliesDetected)
}

func TestCorrelateUnavailableDeviceSkipped(t *testing.T) {
	// dev020's readings are unavailable; the remaining devices still form a
	// cascade and the failed device contributes no anomalies.
	c := correlator(&fakeSource{
		windows: map[string][]pipeline.Reading{
			"dev010": spiking("dev010", t0),
			"dev030": spiking("dev030", t0.Add(60*time.Second)),
		},
		errs: map[string]error{
			"dev020": &errors.Error{
				Kind:     errors.DataUnavailable,
				Message:  "no data",
				DeviceID: "dev020",
			},
		},
	})

	report, err := c.Correlate(
		context.Background(), sector(), pipeline.Temperature, time.Hour, static)
	require.NoError(t, err)

	require.Equal(t, 2, report.DevicesAnalyzed)
	require.True(t, report.CascadeDetected)
	require.Equal(t, cascade.Forward, report.Direction)
	require.InDelta(t, 60, *report.PropagationSpeedSeconds, 1e-9)
}
