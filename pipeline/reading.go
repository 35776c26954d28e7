// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package pipeline

import "time"

type (
	// Reading is a single timestamped measurement for a device and metric.
	// Forecasted points carry IsPrediction and are otherwise identical.
	Reading struct {
		Timestamp    time.Time `json:"timestamp"`
		DeviceID     string    `json:"device_id"`
		Metric       Metric    `json:"metric"`
		Value        float64   `json:"value"`
		Unit         string    `json:"unit,omitempty"`
		IsPrediction bool      `json:"is_prediction,omitempty"`
	}

	// AnomalyPoint is a reading or forecast point flagged as out-of-bounds.
	AnomalyPoint struct {
		Timestamp     time.Time `json:"timestamp"`
		DeviceID      string    `json:"device_id"`
		Metric        Metric    `json:"metric"`
		Value         float64   `json:"value"`
		BoundViolated Bound     `json:"bound_violated"`
		IsPrediction  bool      `json:"is_prediction,omitempty"`
	}
)
