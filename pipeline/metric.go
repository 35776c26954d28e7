// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package pipeline

type (
	// Metric identifies a measured quantity on a device.
	Metric string

	// Bound identifies which threshold a value violated.
	Bound string

	// Severity is the caller-supplied urgency tag attached to an anomaly
	// signal. It is used by the mitigation policy, not derived by the core.
	Severity string
)

// The metrics measured along a pipeline sector.
const (
	Temperature Metric = "temperature"
	Pressure    Metric = "pressure"
)

// Metrics lists all analyzed metrics in a stable order.
var Metrics = []Metric{Temperature, Pressure}

// The bounds a reading can violate.
const (
	BoundHigh Bound = "high"
	BoundLow  Bound = "low"
)

// The severities recognized by the mitigation policy.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether the metric is one of the analyzed metrics.
func (m Metric) Valid() bool {
	return m == Temperature || m == Pressure
}
