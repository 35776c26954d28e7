// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package actuator

import (
	"encoding/json"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// CommandMessage is the wire payload published to a valve. CommandID
	// lets the actuation log be correlated with valve-side logs.
	CommandMessage struct {
		CommandID  string    `json:"command_id"`
		DeviceID   string    `json:"device_id"`
		SectorID   string    `json:"sector_id"`
		Timestamp  time.Time `json:"timestamp"`
		Command    string    `json:"command"`
		Percentage *int      `json:"percentage,omitempty"`
	}

	// StatusMessage is the wire payload echoed by a valve after actuation.
	StatusMessage struct {
		DeviceID   string    `json:"device_id"`
		SectorID   string    `json:"sector_id"`
		Timestamp  time.Time `json:"timestamp"`
		State      string    `json:"state"`
		Percentage int       `json:"percentage,omitempty"`
	}
)

// The wire command verbs.
const (
	commandOpen    = "open"
	commandClose   = "close"
	commandPartial = "partial"
)

// wireCommand maps a valve position to its wire verb.
func wireCommand(p pipeline.ValvePosition) (string, error) {
	switch p {
	case pipeline.ValveOpen:
		return commandOpen, nil
	case pipeline.ValveClosed:
		return commandClose, nil
	case pipeline.ValvePartial:
		return commandPartial, nil
	default:
		return "", &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "valve position has no wire command",
			PropertyName:  "Command",
			PropertyValue: string(p),
		}
	}
}

// statusPosition maps an echoed state to a valve position.
func statusPosition(state string) (pipeline.ValvePosition, bool) {
	switch state {
	case "open":
		return pipeline.ValveOpen, true
	case "closed", "close":
		return pipeline.ValveClosed, true
	case "partial":
		return pipeline.ValvePartial, true
	default:
		return pipeline.ValveUnknown, false
	}
}

// ValveState converts the echoed status to the controller's state model.
func (m *StatusMessage) ValveState() (pipeline.ValveState, error) {
	position, ok := statusPosition(m.State)
	if !ok {
		return pipeline.ValveState{}, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "valve status state unrecognized",
			SectorID:      m.SectorID,
			DeviceID:      m.DeviceID,
			PropertyName:  "State",
			PropertyValue: m.State,
		}
	}
	return pipeline.ValveState{
		SectorID:   m.SectorID,
		DeviceID:   m.DeviceID,
		State:      position,
		Percentage: m.Percentage,
		LastAction: m.Timestamp,
		LastReason: "status echo",
	}, nil
}

func parseStatus(payload []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &errors.Error{
			Kind:        errors.ValidationError,
			Message:     "valve status payload invalid",
			NestedError: err,
		}
	}
	return &msg, nil
}
