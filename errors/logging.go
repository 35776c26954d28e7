// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "log/slog"

// Attrs exposes the structured fields of the error for logging.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 8)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.SectorID != "" {
		a = append(a, slog.String("sector_id", e.SectorID))
	}

	if e.DeviceID != "" {
		a = append(a, slog.String("device_id", e.DeviceID))
	}

	if e.Metric != "" {
		a = append(a, slog.String("metric", e.Metric))
	}

	if e.Service != "" {
		a = append(a, slog.String("service", e.Service))
	}

	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}

	switch e.Kind {
	case ValidationError, ConfigurationInvalid, InternalError:
		if e.PropertyName != "" {
			a = append(a, slog.String("property_name", e.PropertyName))
		}
		if e.PropertyValue != nil {
			a = append(a, slog.Any("property_value", e.PropertyValue))
		}
	case Timeout:
		a = append(a,
			slog.String("timeout_name", e.TimeoutName),
			slog.Duration("timeout_value", e.TimeoutValue),
		)
	}

	return a
}
