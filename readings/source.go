// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package readings provides access to stored sensor series, either from the
// readings HTTP service or directly from InfluxDB.
package readings

import (
	"context"
	"time"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/internal/wallclock"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// Source supplies readings for one device and metric over a time range,
	// ordered by timestamp ascending.
	Source interface {
		GetSeries(
			ctx context.Context,
			deviceID string,
			metric pipeline.Metric,
			start, end time.Time,
		) ([]pipeline.Reading, error)
	}

	// Windows adapts a Source to lookback-window fetches ending now.
	Windows struct {
		Source Source
	}

	// Config selects and configures the readings backend.
	Config struct {
		// Backend is "http" or "influxdb".
		Backend string

		// URL is the readings service base URL (http backend).
		URL string

		// InfluxURL, InfluxToken, InfluxOrg and InfluxBucket configure the
		// influxdb backend.
		InfluxURL    string
		InfluxToken  string
		InfluxOrg    string
		InfluxBucket string

		// Timeout bounds each fetch. Defaults to 10s.
		Timeout time.Duration
	}
)

// Backend names accepted by Config.
const (
	BackendHTTP     = "http"
	BackendInfluxDB = "influxdb"
)

// New creates the Source selected by the configuration.
func New(cfg Config) (Source, error) {
	switch cfg.Backend {
	case BackendHTTP, "":
		if cfg.URL == "" {
			return nil, &errors.Error{
				Kind:         errors.ConfigurationInvalid,
				Message:      "readings service URL is required",
				PropertyName: "URL",
			}
		}
		return NewHTTPSource(cfg.URL, withTimeout(cfg.Timeout)), nil
	case BackendInfluxDB:
		if cfg.InfluxURL == "" || cfg.InfluxBucket == "" {
			return nil, &errors.Error{
				Kind:         errors.ConfigurationInvalid,
				Message:      "influxdb URL and bucket are required",
				PropertyName: "InfluxURL",
			}
		}
		return NewInfluxSource(
			cfg.InfluxURL,
			cfg.InfluxToken,
			cfg.InfluxOrg,
			cfg.InfluxBucket,
		), nil
	default:
		return nil, &errors.Error{
			Kind:          errors.ConfigurationInvalid,
			Message:       "unknown readings backend",
			PropertyName:  "Backend",
			PropertyValue: cfg.Backend,
		}
	}
}

// Window fetches the trailing window for a device and metric.
func (w Windows) Window(
	ctx context.Context,
	deviceID string,
	metric pipeline.Metric,
	lookback time.Duration,
) ([]pipeline.Reading, error) {
	end := wallclock.Instance.Now()
	return w.Source.GetSeries(ctx, deviceID, metric, end.Add(-lookback), end)
}

func withTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return 10 * time.Second
	}
	return timeout
}

func dataUnavailable(deviceID string, metric pipeline.Metric, err error) error {
	return &errors.Error{
		Kind:        errors.DataUnavailable,
		Message:     "readings unavailable",
		DeviceID:    deviceID,
		Metric:      string(metric),
		NestedError: err,
	}
}
