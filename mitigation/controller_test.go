// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mitigation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/mitigation"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type published struct {
	sectorID string
	deviceID string
	cmd      pipeline.ValveCommand
}

// fakeChannel records published commands and optionally fails.
type fakeChannel struct {
	published []published
	err       error
}

func (c *fakeChannel) PublishCommand(
	_ context.Context,
	sectorID, deviceID string,
	cmd pipeline.ValveCommand,
) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, published{sectorID, deviceID, cmd})
	return nil
}

// failingQuerier always fails to resolve state.
type failingQuerier struct{}

func (failingQuerier) ValveState(sectorID string) (pipeline.ValveState, error) {
	return pipeline.ValveState{}, &errors.Error{
		Kind:     errors.StateUnknown,
		Message:  "device lookup failed",
		SectorID: sectorID,
	}
}

func sector() *pipeline.Sector {
	return &pipeline.Sector{
		ID: "sector-7",
		Devices: []pipeline.Device{
			{ID: "dev010", SectorID: "sector-7", Position: 0},
			{ID: "dev020", SectorID: "sector-7", Position: 1},
			{ID: "dev030", SectorID: "sector-7", Position: 2},
		},
	}
}

func controller(ch mitigation.Publisher) (*mitigation.Controller, *mitigation.ValveStore) {
	store := mitigation.NewValveStore()
	store.Observe(pipeline.ValveState{
		SectorID: "sector-7",
		State:    pipeline.ValveOpen,
	})
	return &mitigation.Controller{
		Store:      store,
		Thresholds: mitigation.NewThresholdStore(mitigation.DefaultThresholds),
		Channel:    ch,
	}, store
}

func forwardReport(first string, firstPos int) *cascade.Report {
	speed := 60.0
	return &cascade.Report{
		SectorID:                "sector-7",
		Metric:                  pipeline.Temperature,
		DevicesAnalyzed:         3,
		AnomaliesDetected:       6,
		CascadeDetected:         true,
		Direction:               cascade.Forward,
		PropagationSpeedSeconds: &speed,
		AffectedDevices: []cascade.DeviceAnomalies{
			{DeviceID: first, Position: firstPos},
		},
	}
}

func TestCascadeClosesUpstreamValve(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.CascadeSignal{
		Sector:   sector(),
		Report:   forwardReport("dev020", 1),
		Severity: pipeline.SeverityHigh,
	})
	require.NoError(t, err)

	require.NotNil(t, d.Action)
	require.Equal(t, pipeline.ValveClosed, d.Action.Command)
	require.Equal(t, "dev010", d.TargetDeviceID)
	require.Equal(t, "cascade propagating forward", d.Reason)
	require.Len(t, ch.published, 1)
}

func TestCascadeAlwaysReasserts(t *testing.T) {
	// The emergency branch publishes even when the valve is already closed;
	// re-assertion is deliberate.
	ch := &fakeChannel{}
	c, store := controller(ch)
	store.Observe(pipeline.ValveState{
		SectorID: "sector-7",
		State:    pipeline.ValveClosed,
	})

	d, err := c.Decide(context.Background(), mitigation.CascadeSignal{
		Sector:   sector(),
		Report:   forwardReport("dev020", 1),
		Severity: pipeline.SeverityHigh,
	})
	require.NoError(t, err)

	require.NotNil(t, d.Action)
	require.False(t, d.AlreadyInState)
	require.Len(t, ch.published, 1)
}

func TestCascadeAtOriginContainsAtOrigin(t *testing.T) {
	// No device upstream of position 0; the origin valve is closed instead.
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.CascadeSignal{
		Sector:   sector(),
		Report:   forwardReport("dev010", 0),
		Severity: pipeline.SeverityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, "dev010", d.TargetDeviceID)
}

func TestCascadeMediumSeverityNoAction(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.CascadeSignal{
		Sector:   sector(),
		Report:   forwardReport("dev020", 1),
		Severity: pipeline.SeverityMedium,
	})
	require.NoError(t, err)

	require.Nil(t, d.Action)
	require.Empty(t, ch.published)
	require.NotNil(t, d.Valve)
	require.Equal(t, pipeline.ValveOpen, d.Valve.State)
}

func TestBothThresholdsExceededClosesRegardlessOfSeverity(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityLow,
		Observed: map[pipeline.Metric]float64{
			pipeline.Temperature: 90,
			pipeline.Pressure:    9.0,
		},
	})
	require.NoError(t, err)

	require.NotNil(t, d.Action)
	require.Equal(t, pipeline.ValveClosed, d.Action.Command)
	require.Contains(t, d.Reason, "both thresholds exceeded")
	require.Contains(t, d.Reason, "90.0")
	require.Contains(t, d.Reason, "9.0")
	require.Len(t, ch.published, 1)
}

func TestSingleMetricHighSeverityCloses(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityHigh,
		Observed: map[pipeline.Metric]float64{
			pipeline.Temperature: 90,
			pipeline.Pressure:    5,
		},
	})
	require.NoError(t, err)

	require.NotNil(t, d.Action)
	require.Contains(t, d.Reason, "temperature threshold exceeded")
	require.Contains(t, d.Reason, "90.0")
}

func TestSingleMetricMediumSeverityNoAction(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	d, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityMedium,
		Observed: map[pipeline.Metric]float64{
			pipeline.Temperature: 90,
			pipeline.Pressure:    5,
		},
	})
	require.NoError(t, err)

	require.Nil(t, d.Action)
	require.Empty(t, ch.published)
	require.NotNil(t, d.Valve)
	require.Equal(t, pipeline.ValveOpen, d.Valve.State)
	require.NotNil(t, d.Thresholds)
	require.Equal(t, 85.0, d.Thresholds.Temperature.High)
	require.Equal(t, 8.5, d.Thresholds.Pressure.High)
}

func TestCloseIsIdempotent(t *testing.T) {
	ch := &fakeChannel{}
	c, store := controller(ch)
	store.Observe(pipeline.ValveState{
		SectorID: "sector-7",
		State:    pipeline.ValveClosed,
	})

	d, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityHigh,
		Observed: map[pipeline.Metric]float64{pipeline.Temperature: 90},
	})
	require.NoError(t, err)

	require.Nil(t, d.Action)
	require.True(t, d.AlreadyInState)
	require.Equal(t, "already in desired state", d.Reason)
	require.Empty(t, ch.published)
}

func TestUnknownStateAbortsDecision(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)
	c.Query = failingQuerier{}

	_, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityHigh,
		Observed: map[pipeline.Metric]float64{pipeline.Temperature: 90},
	})
	require.Error(t, err)
	require.True(t, errors.IsKind(err, errors.StateUnknown))
	require.Empty(t, ch.published)
}

func TestActuationFailureReported(t *testing.T) {
	ch := &fakeChannel{err: &errors.Error{
		Kind:    errors.ActuationFailure,
		Message: "broker unreachable",
	}}
	c, store := controller(ch)

	_, err := c.Decide(context.Background(), mitigation.AnomalySignal{
		SectorID: "sector-7",
		DeviceID: "dev020",
		Metric:   pipeline.Temperature,
		Severity: pipeline.SeverityHigh,
		Observed: map[pipeline.Metric]float64{pipeline.Temperature: 90},
	})
	require.Error(t, err)
	require.True(t, errors.IsKind(err, errors.ActuationFailure))

	// No state is assumed changed on a failed publish.
	state, err := store.ValveState("sector-7")
	require.NoError(t, err)
	require.Equal(t, pipeline.ValveOpen, state.State)
}

func TestValidationRejectsMalformedSignals(t *testing.T) {
	ch := &fakeChannel{}
	c, _ := controller(ch)

	for _, sig := range []mitigation.Signal{
		mitigation.AnomalySignal{DeviceID: "dev020", Metric: pipeline.Temperature},
		mitigation.AnomalySignal{SectorID: "sector-7", Metric: pipeline.Temperature},
		mitigation.AnomalySignal{
			SectorID: "sector-7", DeviceID: "dev020", Metric: "vibration",
		},
		mitigation.CascadeSignal{},
	} {
		_, err := c.Decide(context.Background(), sig)
		require.Error(t, err)
		require.True(t, errors.IsKind(err, errors.ValidationError))
	}
	require.Empty(t, ch.published)
}

func TestObserveUpdatesView(t *testing.T) {
	store := mitigation.NewValveStore()

	_, err := store.ValveState("sector-7")
	require.Error(t, err)
	require.True(t, errors.IsKind(err, errors.StateUnknown))

	store.Observe(pipeline.ValveState{
		SectorID:   "sector-7",
		State:      pipeline.ValvePartial,
		Percentage: 40,
		LastAction: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	state, err := store.ValveState("sector-7")
	require.NoError(t, err)
	require.Equal(t, pipeline.ValvePartial, state.State)
	require.Equal(t, 40, state.Percentage)
}
