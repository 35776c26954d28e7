// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package pipeline

import (
	"fmt"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
)

type (
	// ValvePosition is the commanded state of a valve.
	ValvePosition string

	// ValveCommand is an explicit actuation command. Percentage is meaningful
	// only for ValvePartial.
	ValveCommand struct {
		Command    ValvePosition `json:"command"`
		Percentage *int          `json:"percentage,omitempty"`
	}

	// ValveState is the controller's view of a sector valve. It is the one
	// piece of core state that survives across analysis cycles, and it is
	// mutated only by the mitigation controller.
	ValveState struct {
		SectorID string `json:"sector_id"`
		DeviceID string `json:"device_id,omitempty"`

		// State is ValveUnknown until the first observation or registration.
		State ValvePosition `json:"state"`

		// Percentage is defined only when State is ValvePartial.
		Percentage int `json:"percentage,omitempty"`

		LastAction time.Time `json:"last_action_timestamp,omitempty"`
		LastReason string    `json:"last_action_reason,omitempty"`
	}
)

// The valve positions. There is no implicit default; a valve is unknown until
// first read.
const (
	ValveUnknown ValvePosition = ""
	ValveOpen    ValvePosition = "open"
	ValveClosed  ValvePosition = "closed"
	ValvePartial ValvePosition = "partial"
)

// Validate rejects malformed commands. Partial commands require a percentage
// in [0,100]; open and close must not carry one.
func (c ValveCommand) Validate() error {
	switch c.Command {
	case ValveOpen, ValveClosed:
		if c.Percentage != nil {
			return &errors.Error{
				Kind:          errors.ValidationError,
				Message:       fmt.Sprintf("%s command must not carry a percentage", c.Command),
				PropertyName:  "Percentage",
				PropertyValue: *c.Percentage,
			}
		}
	case ValvePartial:
		if c.Percentage == nil {
			return &errors.Error{
				Kind:         errors.ValidationError,
				Message:      "partial command requires a percentage",
				PropertyName: "Percentage",
			}
		}
		if *c.Percentage < 0 || *c.Percentage > 100 {
			return &errors.Error{
				Kind:          errors.ValidationError,
				Message:       "partial percentage out of range",
				PropertyName:  "Percentage",
				PropertyValue: *c.Percentage,
			}
		}
	default:
		return &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "unrecognized valve command",
			PropertyName:  "Command",
			PropertyValue: string(c.Command),
		}
	}
	return nil
}

// Matches reports whether the valve is already in the state the command would
// produce.
func (s *ValveState) Matches(c ValveCommand) bool {
	if s.State != c.Command {
		return false
	}
	if c.Command == ValvePartial {
		return c.Percentage != nil && s.Percentage == *c.Percentage
	}
	return true
}

// Apply transitions the valve per the command. Transitions happen only via
// explicit commands; the command must already be validated.
func (s *ValveState) Apply(c ValveCommand, at time.Time, reason string) {
	s.State = c.Command
	if c.Command == ValvePartial && c.Percentage != nil {
		s.Percentage = *c.Percentage
	} else {
		s.Percentage = 0
	}
	s.LastAction = at
	s.LastReason = reason
}
