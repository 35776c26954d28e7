// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package cascade

import "github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"

type (
	// Direction is the inferred propagation direction of a cascade relative
	// to pipeline position order.
	Direction string

	// DeviceAnomalies holds one device's anomalies within a sector analysis,
	// ordered as detected.
	DeviceAnomalies struct {
		DeviceID  string                  `json:"device_id"`
		Position  int                     `json:"position"`
		Anomalies []pipeline.AnomalyPoint `json:"anomalies"`
	}

	// Report is the result of one cascade analysis over a sector and metric.
	// Reports are ephemeral; they are computed per cycle and not persisted.
	Report struct {
		SectorID          string          `json:"sector_id"`
		Metric            pipeline.Metric `json:"metric"`
		DevicesAnalyzed   int             `json:"devices_analyzed"`
		AnomaliesDetected int             `json:"anomalies_detected"`
		CascadeDetected   bool            `json:"cascade_detected"`
		Direction         Direction       `json:"propagation_direction"`

		// PropagationSpeedSeconds is defined only when a cascade was detected
		// and at least two anomalous devices contributed timestamps.
		PropagationSpeedSeconds *float64 `json:"propagation_speed_seconds,omitempty"`

		// AffectedDevices lists anomalous devices ordered by temporal onset.
		AffectedDevices []DeviceAnomalies `json:"affected_devices,omitempty"`
	}
)

// The propagation directions.
const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	None     Direction = "none"
)
