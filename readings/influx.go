// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package readings

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

// InfluxSource fetches series directly from InfluxDB, bypassing the readings
// HTTP service. Used when the monitor is co-deployed with the time-series
// store.
type InfluxSource struct {
	client influxdb2.Client
	query  api.QueryAPI
	bucket string
}

// NewInfluxSource creates a Source backed by an InfluxDB bucket.
func NewInfluxSource(url, token, org, bucket string) *InfluxSource {
	client := influxdb2.NewClient(url, token)
	return &InfluxSource{
		client: client,
		query:  client.QueryAPI(org),
		bucket: bucket,
	}
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSource) Close() {
	s.client.Close()
}

// GetSeries fetches readings for a device and metric over a time range.
func (s *InfluxSource) GetSeries(
	ctx context.Context,
	deviceID string,
	metric pipeline.Metric,
	start, end time.Time,
) ([]pipeline.Reading, error) {
	if !metric.Valid() {
		return nil, &errors.Error{
			Kind:          errors.ValidationError,
			Message:       "unknown metric",
			DeviceID:      deviceID,
			PropertyName:  "Metric",
			PropertyValue: string(metric),
		}
	}

	result, err := s.query.Query(ctx, fluxQuery(
		s.bucket, deviceID, metric, start, end,
	))
	if err != nil {
		return nil, dataUnavailable(deviceID, metric, err)
	}

	var series []pipeline.Reading
	for result.Next() {
		record := result.Record()
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		series = append(series, pipeline.Reading{
			Timestamp: record.Time(),
			DeviceID:  deviceID,
			Metric:    metric,
			Value:     value,
		})
	}
	if result.Err() != nil {
		return nil, dataUnavailable(deviceID, metric, result.Err())
	}
	if len(series) == 0 {
		return nil, dataUnavailable(deviceID, metric, fmt.Errorf(
			"no points in bucket %q", s.bucket,
		))
	}
	return series, nil
}

// fluxQuery builds the Flux query for one device series. Device IDs come
// from the registry, not user input, but quotes are stripped anyway.
func fluxQuery(
	bucket, deviceID string,
	metric pipeline.Metric,
	start, end time.Time,
) string {
	return fmt.Sprintf(`
        from(bucket: "%s")
          |> range(start: %s, stop: %s)
          |> filter(fn: (r) => r._measurement == "sensor_readings")
          |> filter(fn: (r) => r.device_id == "%s")
          |> filter(fn: (r) => r._field == "%s")
          |> sort(columns: ["_time"])
    `,
		escapeFlux(bucket),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		escapeFlux(deviceID),
		escapeFlux(string(metric)),
	)
}

func escapeFlux(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
