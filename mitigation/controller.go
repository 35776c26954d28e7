// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package mitigation converts anomaly and cascade signals into valve
// actuation decisions under a priority policy, with per-sector serialization
// and idempotency on the non-emergency paths.
package mitigation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/cascade"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/log"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Publisher delivers actuation commands to the actuation channel.
	// Delivery is fire-and-forget; no confirmation is awaited.
	Publisher interface {
		PublishCommand(
			ctx context.Context,
			sectorID, deviceID string,
			cmd pipeline.ValveCommand,
		) error
	}

	// Signal is a mitigation input: either a cascade report or a per-device
	// anomaly event.
	Signal interface{ signal() }

	// CascadeSignal wraps a cascade report with its severity and the sector
	// it was computed over.
	CascadeSignal struct {
		Sector   *pipeline.Sector
		Report   *cascade.Report
		Severity pipeline.Severity
	}

	// AnomalySignal is a per-device anomaly event, typically delivered via
	// the inbound API by the analytics bot or dashboard.
	AnomalySignal struct {
		SectorID string
		DeviceID string
		Metric   pipeline.Metric
		Severity pipeline.Severity

		// Observed holds the latest observed value per metric for the device.
		Observed map[pipeline.Metric]float64
	}

	// Decision is the result of evaluating one signal.
	Decision struct {
		SectorID string `json:"sector_id"`

		// TargetDeviceID is the device whose valve the action addresses.
		TargetDeviceID string `json:"target_device_id,omitempty"`

		// Action is nil when the policy decided not to act.
		Action *pipeline.ValveCommand `json:"action,omitempty"`

		Reason string `json:"reason"`

		// AlreadyInState is set when the desired state matched the current
		// state and no actuation message was published.
		AlreadyInState bool `json:"already_in_state,omitempty"`

		// Valve is the current view of the sector valve, populated on no-op
		// and no-action decisions.
		Valve *pipeline.ValveState `json:"valve,omitempty"`

		// Thresholds are the bounds that were evaluated, populated when no
		// action was taken.
		Thresholds *Thresholds `json:"thresholds,omitempty"`
	}

	// Controller is the per-sector valve state machine.
	Controller struct {
		Store      *ValveStore
		Thresholds *ThresholdStore
		Channel    Publisher

		// Query resolves current valve state for the idempotency check.
		// Defaults to Store when nil.
		Query StateQuerier

		Logger *slog.Logger
	}

	logger struct{ log.Logger }
)

func (CascadeSignal) signal() {}
func (AnomalySignal) signal() {}

var closeCommand = pipeline.ValveCommand{Command: pipeline.ValveClosed}

// Decide evaluates one signal against the mitigation policy. Exactly one
// policy branch applies per signal, in priority order. The returned error
// indicates the decision could not be made (unknown state, failed publish);
// the policy deciding not to act is a nil-Action Decision, not an error.
func (c *Controller) Decide(ctx context.Context, sig Signal) (*Decision, error) {
	switch s := sig.(type) {
	case CascadeSignal:
		return c.decideCascade(ctx, s)
	case AnomalySignal:
		return c.decideAnomaly(ctx, s)
	default:
		return nil, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "unrecognized signal",
			PropertyName:  "Signal",
			PropertyValue: fmt.Sprintf("%T", sig),
		}
	}
}

// decideCascade handles the emergency branch. A high-severity cascade closes
// the valve of the device immediately upstream of the first affected device,
// without consulting current state: during an emergency the close command is
// always re-asserted, even if the valve is believed closed already. This
// asymmetry with the idempotent branches is deliberate and must not be
// "fixed" by adding a state check.
func (c *Controller) decideCascade(
	ctx context.Context,
	sig CascadeSignal,
) (*Decision, error) {
	if sig.Report == nil || sig.Sector == nil {
		return nil, &errors.Error{
			Kind:         errors.ValidationError,
			Message:      "cascade signal missing report or sector",
			PropertyName: "CascadeSignal",
		}
	}

	if !sig.Report.CascadeDetected || sig.Severity != pipeline.SeverityHigh ||
		len(sig.Report.AffectedDevices) == 0 {
		return c.noAction(sig.Sector.ID)
	}

	first := sig.Report.AffectedDevices[0]
	target, ok := sig.Sector.DeviceAt(first.Position - 1)
	if !ok {
		// No device upstream of the cascade origin; contain at the origin.
		target, ok = sig.Sector.Device(first.DeviceID)
		if !ok {
			return nil, &errors.Error{
				Kind:     errors.StateUnknown,
				Message:  "cascade origin device not found in sector",
				SectorID: sig.Sector.ID,
				DeviceID: first.DeviceID,
			}
		}
	}

	reason := fmt.Sprintf("cascade propagating %s", sig.Report.Direction)

	v := c.Store.valve(sig.Sector.ID)
	v.mu.Lock()
	defer v.mu.Unlock()

	return c.actuate(ctx, v, sig.Sector.ID, target.ID, closeCommand, reason)
}

// decideAnomaly handles the threshold branches, in priority order.
func (c *Controller) decideAnomaly(
	ctx context.Context,
	sig AnomalySignal,
) (*Decision, error) {
	if sig.SectorID == "" || sig.DeviceID == "" {
		return nil, &errors.Error{
			Kind:         errors.ValidationError,
			Message:      "anomaly signal missing sector or device",
			PropertyName: "AnomalySignal",
		}
	}
	if !sig.Metric.Valid() {
		return nil, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "anomaly signal metric unrecognized",
			SectorID:      sig.SectorID,
			DeviceID:      sig.DeviceID,
			PropertyName:  "Metric",
			PropertyValue: string(sig.Metric),
		}
	}

	th := c.Thresholds.Get()
	temp, hasTemp := sig.Observed[pipeline.Temperature]
	pres, hasPres := sig.Observed[pipeline.Pressure]
	tempHigh := hasTemp && temp > th.Temperature.High
	presHigh := hasPres && pres > th.Pressure.High

	var reason string
	switch {
	case tempHigh && presHigh:
		// Both metrics over their highs always closes, regardless of the
		// declared severity.
		reason = fmt.Sprintf(
			"both thresholds exceeded: temperature=%.1f (high %.1f), pressure=%.1f (high %.1f)",
			temp, th.Temperature.High, pres, th.Pressure.High)

	case (tempHigh || presHigh) && sig.Severity == pipeline.SeverityHigh:
		metric, value, high := pipeline.Temperature, temp, th.Temperature.High
		if presHigh {
			metric, value, high = pipeline.Pressure, pres, th.Pressure.High
		}
		reason = fmt.Sprintf(
			"%s threshold exceeded: %.1f (high %.1f)", metric, value, high)

	default:
		return c.noAction(sig.SectorID)
	}

	v := c.Store.valve(sig.SectorID)
	v.mu.Lock()
	defer v.mu.Unlock()

	// Idempotency: never publish when the valve is already in the desired
	// state, and never act at all when the current state cannot be resolved.
	current, err := c.queryStateLocked(v, sig.SectorID)
	if err != nil {
		return nil, err
	}
	if current.Matches(closeCommand) {
		d := &Decision{
			SectorID:       sig.SectorID,
			TargetDeviceID: sig.DeviceID,
			Reason:         "already in desired state",
			AlreadyInState: true,
			Valve:          &current,
		}
		c.logger().decision(ctx, d)
		return d, nil
	}

	return c.actuate(ctx, v, sig.SectorID, sig.DeviceID, closeCommand, reason)
}

// actuate publishes the command and optimistically updates the valve view.
// The caller must hold the valve mutex.
func (c *Controller) actuate(
	ctx context.Context,
	v *valve,
	sectorID, deviceID string,
	cmd pipeline.ValveCommand,
	reason string,
) (*Decision, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if err := c.Channel.PublishCommand(ctx, sectorID, deviceID, cmd); err != nil {
		return nil, &errors.Error{
			Kind:        errors.ActuationFailure,
			Message:     "actuation publish failed",
			SectorID:    sectorID,
			DeviceID:    deviceID,
			NestedError: err,
		}
	}

	v.state.SectorID = sectorID
	v.state.Apply(cmd, wallclock.Instance.Now(), reason)

	d := &Decision{
		SectorID:       sectorID,
		TargetDeviceID: deviceID,
		Action:         &cmd,
		Reason:         reason,
	}
	c.logger().decision(ctx, d)
	return d, nil
}

// noAction reports the current valve state and the evaluated thresholds.
func (c *Controller) noAction(sectorID string) (*Decision, error) {
	current, err := c.queryState(sectorID)
	if err != nil {
		return nil, err
	}

	th := c.Thresholds.Get()
	return &Decision{
		SectorID:   sectorID,
		Reason:     "no action required",
		Valve:      &current,
		Thresholds: &th,
	}, nil
}

func (c *Controller) queryState(sectorID string) (pipeline.ValveState, error) {
	query := c.Query
	if query == nil {
		query = c.Store
	}
	return query.ValveState(sectorID)
}

// queryStateLocked resolves current state while the valve mutex is held. The
// store-backed default reads the locked entry directly; an external querier
// is called as-is.
func (c *Controller) queryStateLocked(
	v *valve,
	sectorID string,
) (pipeline.ValveState, error) {
	if c.Query != nil {
		return c.Query.ValveState(sectorID)
	}
	if v.state.State == pipeline.ValveUnknown {
		return pipeline.ValveState{}, &errors.Error{
			Kind:     errors.StateUnknown,
			Message:  "valve state has not been observed",
			SectorID: sectorID,
		}
	}
	return v.state, nil
}

func (c *Controller) logger() *logger {
	return &logger{log.Wrap(c.Logger)}
}

func (l *logger) decision(ctx context.Context, d *Decision) {
	attrs := []slog.Attr{
		slog.String("sector_id", d.SectorID),
		slog.String("reason", d.Reason),
	}
	if d.Action != nil {
		attrs = append(attrs,
			slog.String("device_id", d.TargetDeviceID),
			slog.String("command", string(d.Action.Command)),
		)
		l.Log(ctx, slog.LevelInfo, "valve actuation", attrs...)
	} else {
		l.Log(ctx, slog.LevelInfo, "no actuation", attrs...)
	}
}
