// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package pipeline

import (
	"sort"
	"strconv"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
)

type (
	// Device is a sensor node at a fixed physical position along a sector.
	// Position is an explicit field populated at registration time; the
	// correlator and controller depend on it being unique within a sector.
	Device struct {
		ID       string    `json:"id"`
		SectorID string    `json:"sector_id"`
		Position int       `json:"position"`
		LastSeen time.Time `json:"last_seen,omitempty"`

		// Latest known reading per metric, updated on every reading.
		Latest map[Metric]Reading `json:"latest,omitempty"`
	}

	// Sector is a physically ordered group of devices along one pipeline
	// segment, governed by one valve.
	Sector struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Devices []Device `json:"devices"`
	}
)

// ParsePosition derives a pipeline position from a legacy numeric-suffix
// device identifier such as "dev010" (position 1). It is a registration-time
// compatibility shim; once a Device carries an explicit Position, this is not
// consulted again.
func ParsePosition(deviceID string) (int, error) {
	start := len(deviceID)
	for start > 0 && deviceID[start-1] >= '0' && deviceID[start-1] <= '9' {
		start--
	}
	if start == len(deviceID) {
		return 0, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "device identifier has no numeric suffix",
			DeviceID:      deviceID,
			PropertyName:  "ID",
			PropertyValue: deviceID,
		}
	}

	n, err := strconv.Atoi(deviceID[start:])
	if err != nil {
		return 0, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "device identifier suffix is not a valid position",
			DeviceID:      deviceID,
			PropertyName:  "ID",
			PropertyValue: deviceID,
			NestedError:   err,
		}
	}

	// Legacy identifiers encode position*10 in the suffix ("dev010" -> 1).
	if n%10 == 0 {
		n /= 10
	}
	return n, nil
}

// DevicesByPosition returns the sector's devices sorted by position. The
// source list is never assumed to be ordered.
func (s *Sector) DevicesByPosition() []Device {
	devices := make([]Device, len(s.Devices))
	copy(devices, s.Devices)
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Position < devices[j].Position
	})
	return devices
}

// DeviceAt returns the device at the given position, if any.
func (s *Sector) DeviceAt(position int) (Device, bool) {
	for _, d := range s.Devices {
		if d.Position == position {
			return d, true
		}
	}
	return Device{}, false
}

// Device returns the device with the given ID, if any.
func (s *Sector) Device(deviceID string) (Device, bool) {
	for _, d := range s.Devices {
		if d.ID == deviceID {
			return d, true
		}
	}
	return Device{}, false
}
