// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package readings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/errors"
	"github.com/mahdirajaee/SmartBolt-IOT-Platform-sub000/pipeline"
)

type (
	// HTTPSource fetches series from the readings HTTP service.
	HTTPSource struct {
		baseURL string
		http    *http.Client
	}

	// seriesPoint is one point of the readings service response. Timestamps
	// are ISO-8601 and not necessarily full RFC 3339.
	seriesPoint struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
		Unit      string  `json:"unit,omitempty"`
	}
)

// NewHTTPSource creates a Source backed by the readings HTTP service.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetSeries fetches readings for a device and metric over a time range. An
// empty series reports DataUnavailable, like any other fetch failure.
func (s *HTTPSource) GetSeries(
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

	q := url.Values{}
	q.Set("metric", string(metric))
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	u := s.baseURL + "/devices/" + url.PathEscape(deviceID) +
		"/readings?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &errors.Error{
			Kind:        errors.InternalError,
			Message:     "readings request invalid",
			DeviceID:    deviceID,
			NestedError: err,
		}
	}

	res, err := s.http.Do(req)
	if err != nil {
		return nil, dataUnavailable(deviceID, metric, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, dataUnavailable(deviceID, metric, fmt.Errorf(
			"readings service returned status %d", res.StatusCode,
		))
	}

	var points []seriesPoint
	if err := json.NewDecoder(res.Body).Decode(&points); err != nil {
		return nil, dataUnavailable(deviceID, metric, err)
	}
	if len(points) == 0 {
		return nil, dataUnavailable(deviceID, metric, fmt.Errorf(
			"readings service returned no points",
		))
	}

	series := make([]pipeline.Reading, len(points))
	for i, p := range points {
		at, err := iso8601.ParseString(p.Timestamp)
		if err != nil {
			return nil, dataUnavailable(deviceID, metric, fmt.Errorf(
				"invalid timestamp %q: %w", p.Timestamp, err,
			))
		}
		series[i] = pipeline.Reading{
			Timestamp: at,
			DeviceID:  deviceID,
			Metric:    metric,
			Value:     p.Value,
			Unit:      p.Unit,
		}
	}
	return series, nil
}
